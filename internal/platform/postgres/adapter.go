// Package postgres is the engine's sole I/O boundary: a thin layer over
// pgxpool that adds schema-prefixed table names, transaction-scoped
// advisory locks, statement/lock timeouts, read-replica routing and an
// after-commit callback queue.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/metrics"
)

const (
	DefaultStatementTimeout = 30 * time.Second
	DefaultLockTimeout      = 3 * time.Second
)

// Querier is the common query surface of a pool and an open transaction.
// Both pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Config struct {
	Pool             *pgxpool.Pool
	Replica          *pgxpool.Pool
	Schema           string
	StatementTimeout time.Duration
	LockTimeout      time.Duration
	Serializable     bool
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
}

type Adapter struct {
	pool    *pgxpool.Pool
	replica *pgxpool.Pool

	Tables  *Resolver
	Dialect Dialect

	stmtTimeout  time.Duration
	lockTimeout  time.Duration
	serializable bool
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Pool == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "postgres: pool is required")
	}
	tables, err := NewResolver(cfg.Schema)
	if err != nil {
		return nil, err
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultStatementTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Adapter{
		pool:         cfg.Pool,
		replica:      cfg.Replica,
		Tables:       tables,
		Dialect:      PostgresDialect,
		stmtTimeout:  cfg.StatementTimeout,
		lockTimeout:  cfg.LockTimeout,
		serializable: cfg.Serializable,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// Tx is a scoped view of one open database transaction. Stores receive
// it from Transact and must not retain it past the callback.
type Tx struct {
	tx          pgx.Tx
	a           *Adapter
	afterCommit []func()
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, args...)
}

// QueueAfterCommit registers fn to run after this transaction commits.
// On rollback the queue is discarded.
func (t *Tx) QueueAfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// AdvisoryLock takes a transaction-scoped advisory lock; PostgreSQL
// releases it on commit or rollback.
func (t *Tx) AdvisoryLock(ctx context.Context, key int64) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return MapError(err)
	}
	return nil
}

type txKey struct{}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) *Tx {
	t, _ := ctx.Value(txKey{}).(*Tx)
	return t
}

// Transact runs fn inside a database transaction. A nested call reuses
// the transaction already carried by ctx instead of opening a new one;
// in that case commit, rollback and the after-commit queue belong to the
// outermost caller.
func (a *Adapter) Transact(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if cur := TxFrom(ctx); cur != nil {
		return fn(ctx, cur)
	}

	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	if a.serializable {
		opts.IsoLevel = pgx.Serializable
	}
	pgtx, err := a.pool.BeginTx(ctx, opts)
	if err != nil {
		return MapError(err)
	}
	t := &Tx{tx: pgtx, a: a}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := t.applyTimeouts(ctx, a.stmtTimeout, a.lockTimeout); err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, t), t); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return MapError(err)
	}
	a.metrics.ObserveAfterCommitQueue(len(t.afterCommit))
	for _, cb := range t.afterCommit {
		a.runCallback(cb)
	}
	return nil
}

func (t *Tx) applyTimeouts(ctx context.Context, stmt, lock time.Duration) error {
	// SET LOCAL does not accept bind parameters; values come from
	// validated durations, never from callers.
	q := fmt.Sprintf("SET LOCAL statement_timeout = %d; SET LOCAL lock_timeout = %d",
		stmt.Milliseconds(), lock.Milliseconds())
	if _, err := t.tx.Exec(ctx, q); err != nil {
		return MapError(err)
	}
	return nil
}

func (a *Adapter) runCallback(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("after-commit callback panicked", zap.Any("panic", r))
		}
	}()
	cb()
}

// Write returns the querier for mutations and locked reads: the
// enclosing transaction when ctx carries one, otherwise the primary
// pool.
func (a *Adapter) Write(ctx context.Context) Querier {
	if t := TxFrom(ctx); t != nil {
		return t
	}
	return a.pool
}

// Read returns the querier for plain SELECTs. Reads inside an open
// transaction stay pinned to it for read-your-writes; otherwise they go
// to the replica pool when one is configured.
func (a *Adapter) Read(ctx context.Context) Querier {
	if t := TxFrom(ctx); t != nil {
		return t
	}
	if a.replica != nil {
		return a.replica
	}
	return a.pool
}

// Ping verifies connectivity of the primary and, when configured, the
// replica.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return MapError(err)
	}
	if a.replica != nil {
		if err := a.replica.Ping(ctx); err != nil {
			return MapError(err)
		}
	}
	return nil
}

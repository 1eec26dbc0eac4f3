// Package engine implements the double-entry transaction manager, the
// two-phase hold manager and the account lifecycle on top of the event
// store, balance manager and hot-account pipeline.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/eventstore"
	"github.com/ShivamGupta-SM/summa-sub004/internal/fx"
	"github.com/ShivamGupta-SM/summa-sub004/internal/hotaccount"
	"github.com/ShivamGupta-SM/summa-sub004/internal/idempotency"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/metrics"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

const (
	DefaultMaxTransactionAmount = int64(100_000_000_000)
	DefaultWorldIdentifier      = "@world"
	DefaultSuspenseIdentifier   = "@suspense"
	DefaultLockRetryCount       = 3
	DefaultLockRetryBaseDelay   = 50 * time.Millisecond
	DefaultLockRetryMaxDelay    = time.Second
)

type Config struct {
	MaxTransactionAmount int64
	LockMode             balance.LockMode
	LockRetryCount       int
	LockRetryBaseDelay   time.Duration
	LockRetryMaxDelay    time.Duration
	WorldIdentifier      string
	SuspenseIdentifier   string
}

func (c *Config) applyDefaults() {
	if c.MaxTransactionAmount <= 0 {
		c.MaxTransactionAmount = DefaultMaxTransactionAmount
	}
	if c.LockMode == "" {
		c.LockMode = balance.LockWait
	}
	if c.LockRetryCount <= 0 {
		c.LockRetryCount = DefaultLockRetryCount
	}
	if c.LockRetryBaseDelay <= 0 {
		c.LockRetryBaseDelay = DefaultLockRetryBaseDelay
	}
	if c.LockRetryMaxDelay <= 0 {
		c.LockRetryMaxDelay = DefaultLockRetryMaxDelay
	}
	if c.WorldIdentifier == "" {
		c.WorldIdentifier = DefaultWorldIdentifier
	}
	if c.SuspenseIdentifier == "" {
		c.SuspenseIdentifier = DefaultSuspenseIdentifier
	}
}

type Engine struct {
	db       *postgres.Adapter
	events   *eventstore.Store
	idem     *idempotency.Store
	balances *balance.Manager
	hot      *hotaccount.Queue
	fx       fx.Resolver
	hooks    *plugin.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock
	cfg      Config
}

type Deps struct {
	DB       *postgres.Adapter
	Events   *eventstore.Store
	Idem     *idempotency.Store
	Balances *balance.Manager
	Hot      *hotaccount.Queue
	FX       fx.Resolver
	Hooks    *plugin.Registry
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.DB == nil || deps.Events == nil || deps.Idem == nil || deps.Balances == nil || deps.Hot == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "engine: missing dependencies")
	}
	if deps.Hooks == nil {
		var err error
		deps.Hooks, err = plugin.NewRegistry(deps.Logger, nil)
		if err != nil {
			return nil, err
		}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	cfg.applyDefaults()
	return &Engine{
		db:       deps.DB,
		events:   deps.Events,
		idem:     deps.Idem,
		balances: deps.Balances,
		hot:      deps.Hot,
		fx:       deps.FX,
		hooks:    deps.Hooks,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		cfg:      cfg,
	}, nil
}

// Hooks exposes the plugin registry for dispatch by the facade.
func (e *Engine) Hooks() *plugin.Registry { return e.hooks }

// HotQueue exposes the hot-account pipeline for the flush workers.
func (e *Engine) HotQueue() *hotaccount.Queue { return e.hot }

// Events exposes the event store for verification surfaces.
func (e *Engine) Events() *eventstore.Store { return e.events }

// Idempotency exposes the idempotency store for the cleanup worker.
func (e *Engine) Idempotency() *idempotency.Store { return e.idem }

// transact runs fn in a transaction, rerunning the whole transaction
// with jittered exponential backoff when NOWAIT locking fast-fails.
// A statement error aborts the database transaction, so retrying any
// finer-grained unit would be unsound.
func (e *Engine) transact(ctx context.Context, fn func(ctx context.Context, tx *postgres.Tx) error) error {
	if e.cfg.LockMode != balance.LockNowait {
		return e.db.Transact(ctx, fn)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.LockRetryBaseDelay
	bo.MaxInterval = e.cfg.LockRetryMaxDelay
	bo.RandomizationFactor = 0.5

	attempts := 0
	return backoff.Retry(func() error {
		err := e.db.Transact(ctx, fn)
		if err == nil {
			return nil
		}
		// Only the NOWAIT fast-fail is worth rerunning; a statement or
		// lock_timeout expiry would just burn its budget again.
		if postgres.IsLockNotAvailable(err) && attempts < e.cfg.LockRetryCount {
			attempts++
			e.metrics.ObserveLockRetry()
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// runOp is the canonical shape of every idempotent mutation: open the
// transaction, replay from the idempotency cache when possible, reject
// duplicate references, execute, then store the result under the key.
func runOp[T any](e *Engine, ctx context.Context, op string, ledgerID uuid.UUID, key, reference string,
	fn func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*T, error),
) (*T, error) {
	start := e.clock.Now()
	var out *T
	err := e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		rec, err := e.idem.Check(ctx, tx, ledgerID, key, reference)
		if err != nil {
			return err
		}
		if rec != nil {
			cached := new(T)
			if err := json.Unmarshal(rec.ResultData, cached); err != nil {
				return errs.Wrap(errs.CodeInternal, "decode cached idempotency result", err)
			}
			e.metrics.ObserveIdempotentReplay()
			out = cached
			return nil
		}
		dup, err := e.referenceExists(ctx, tx, ledgerID, reference)
		if err != nil {
			return err
		}
		if dup {
			return errs.Newf(errs.CodeConflict, "reference %q already used", reference)
		}
		res, err := fn(ctx, tx, uuid.New())
		if err != nil {
			return err
		}
		if err := e.idem.Save(ctx, tx, ledgerID, key, reference, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	code := "OK"
	if err != nil {
		code = string(errs.CodeOf(err))
	}
	e.metrics.ObserveOperation(op, code, e.clock.Now().Sub(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// referenceExists checks the duplicate-reference invariant across both
// transactions and holds.
func (e *Engine) referenceExists(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, reference string) (bool, error) {
	q := fmt.Sprintf(`
SELECT EXISTS(SELECT 1 FROM %s WHERE ledger_id = $1 AND reference = $2)
    OR EXISTS(SELECT 1 FROM %s WHERE ledger_id = $1 AND reference = $2)
`, e.db.Tables.Table("transaction_record"), e.db.Tables.Table("hold"))
	var exists bool
	if err := tx.QueryRow(ctx, q, ledgerID, reference).Scan(&exists); err != nil {
		return false, postgres.MapError(err)
	}
	return exists, nil
}

// resolveAccountID maps a holder to its immutable account id without
// locking; locks are then taken in ascending id order.
func (e *Engine) resolveAccountID(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, holderID string) (uuid.UUID, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE ledger_id = $1 AND holder_id = $2`,
		e.db.Tables.Table("account_balance"))
	var id uuid.UUID
	if err := tx.QueryRow(ctx, q, ledgerID, holderID).Scan(&id); err != nil {
		if errs.IsCode(postgres.MapError(err), errs.CodeNotFound) {
			return uuid.Nil, errs.Newf(errs.CodeNotFound, "account for holder %q not found", holderID)
		}
		return uuid.Nil, postgres.MapError(err)
	}
	return id, nil
}

// ensureSystemAccount returns the system account for (identifier,
// currency), creating it on first use the way suspense and world
// accounts come into existence.
func (e *Engine) ensureSystemAccount(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, identifier, currency string) (*ledger.SystemAccount, error) {
	if !ledger.ValidSystemIdentifier(identifier) {
		return nil, errs.Newf(errs.CodeInvalidArgument, "system account identifier %q must begin with '@'", identifier)
	}
	now := e.clock.Now()
	ins := fmt.Sprintf(`
INSERT INTO %s (id, ledger_id, identifier, currency, balance, credit_balance, debit_balance, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,0,0,0,$5,$5)
ON CONFLICT (ledger_id, identifier, currency) DO NOTHING
`, e.db.Tables.Table("system_account"))
	if _, err := tx.Exec(ctx, ins, uuid.New(), ledgerID, identifier, currency, now); err != nil {
		return nil, postgres.MapError(err)
	}
	sel := fmt.Sprintf(`
SELECT id, ledger_id, identifier, currency, balance, credit_balance, debit_balance, version, created_at, updated_at
FROM %s
WHERE ledger_id = $1 AND identifier = $2 AND currency = $3
`, e.db.Tables.Table("system_account"))
	var sa ledger.SystemAccount
	err := tx.QueryRow(ctx, sel, ledgerID, identifier, currency).Scan(
		&sa.ID, &sa.LedgerID, &sa.Identifier, &sa.Currency,
		&sa.Balance, &sa.CreditBalance, &sa.DebitBalance, &sa.Version,
		&sa.CreatedAt, &sa.UpdatedAt,
	)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	return &sa, nil
}

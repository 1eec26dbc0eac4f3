// Package summa is an embedded, event-sourced double-entry ledger on
// PostgreSQL. Applications construct a Client, create accounts and
// post transactions; every mutation is idempotent, balanced and
// recorded in a tamper-evident event stream.
package summa

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/bus"
	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/engine"
	"github.com/ShivamGupta-SM/summa-sub004/internal/eventstore"
	"github.com/ShivamGupta-SM/summa-sub004/internal/hotaccount"
	"github.com/ShivamGupta-SM/summa-sub004/internal/idempotency"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/logging"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/metrics"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/internal/worker"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
	"github.com/ShivamGupta-SM/summa-sub004/storage"
)

// Client is the embedding surface. Construct with New, optionally
// Start the background workers, and Stop on shutdown.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	engine  *engine.Engine
	db      *postgres.Adapter
	runner  *worker.Runner
	leases  worker.LeaseStore
	bus     *bus.Bus
	kv      *storage.KV
	metrics *metrics.Metrics
}

func New(cfg Config) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger, err = logging.New(cfg.LogLevel)
		if err != nil {
			return nil, errs.Wrap(errs.CodeInvalidArgument, "build logger", err)
		}
	}
	m := metrics.New(cfg.Metrics)

	db, err := postgres.NewAdapter(postgres.Config{
		Pool:             cfg.Pool,
		Replica:          cfg.ReplicaPool,
		Schema:           cfg.Schema,
		StatementTimeout: cfg.TransactionTimeout,
		LockTimeout:      cfg.LockTimeout,
		Serializable:     cfg.Serializable,
		Logger:           logger,
		Metrics:          m,
	})
	if err != nil {
		return nil, err
	}

	secret := []byte(cfg.HMACSecret)
	if len(secret) == 0 {
		secret = nil
	}
	events := eventstore.New(db, secret, cfg.Clock, m)
	idem := idempotency.New(db, cfg.IdempotencyTTL, cfg.Clock)
	balances, err := balance.New(db, balance.LockMode(cfg.LockMode), secret, cfg.Clock)
	if err != nil {
		return nil, err
	}
	hot := hotaccount.New(db, cfg.Clock, logger, m)

	c := &Client{cfg: cfg, logger: logger, db: db, metrics: m}

	if cfg.Redis != nil {
		c.bus, err = bus.New(cfg.Redis, bus.Config{}, logger)
		if err != nil {
			return nil, err
		}
		c.kv, err = storage.New(cfg.Redis, "")
		if err != nil {
			return nil, err
		}
	}

	plugins := cfg.Plugins
	if c.bus != nil {
		plugins = append(plugins[:len(plugins):len(plugins)], c.publicationPlugin())
	}
	hooks, err := plugin.NewRegistry(logger, plugins)
	if err != nil {
		return nil, err
	}

	c.engine, err = engine.New(engine.Deps{
		DB:       db,
		Events:   events,
		Idem:     idem,
		Balances: balances,
		Hot:      hot,
		FX:       cfg.FXResolver,
		Hooks:    hooks,
		Logger:   logger,
		Metrics:  m,
		Clock:    cfg.Clock,
	}, engine.Config{
		MaxTransactionAmount: cfg.MaxTransactionAmount,
		LockMode:             balance.LockMode(cfg.LockMode),
		LockRetryCount:       cfg.LockRetryCount,
		LockRetryBaseDelay:   cfg.LockRetryBaseDelay,
		LockRetryMaxDelay:    cfg.LockRetryMaxDelay,
	})
	if err != nil {
		return nil, err
	}

	if cfg.SingleProcess {
		c.leases = worker.NewMemoryLeaseStore(cfg.Clock)
	} else {
		c.leases = worker.NewPostgresLeaseStore(db, cfg.Clock)
	}
	c.runner = worker.NewRunner(c.leases, logger, m, cfg.Clock)
	if err := c.registerWorkers(); err != nil {
		return nil, err
	}
	return c, nil
}

// publicationPlugin forwards committed activity to the Redis bus. It
// rides the after-commit hooks, so nothing publishes for rolled-back
// transactions.
func (c *Client) publicationPlugin() plugin.Plugin {
	return plugin.Plugin{
		ID: "summa.publication",
		Hooks: plugin.Hooks{
			AfterTransaction: func(ctx context.Context, tc *plugin.TransactionContext) {
				if err := c.bus.Publish(ctx, "transactions", ledger.TransactionResult{
					Transaction: tc.Transaction,
					Entries:     tc.Entries,
				}); err != nil {
					c.logger.Warn("publish transaction", zap.Error(err))
				}
			},
			AfterAccountCreate: func(ctx context.Context, ac *plugin.AccountContext) {
				if err := c.bus.Publish(ctx, "accounts", ac.Account); err != nil {
					c.logger.Warn("publish account", zap.Error(err))
				}
			},
			AfterHoldCommit: func(ctx context.Context, hc *plugin.HoldContext) {
				if err := c.bus.Publish(ctx, "holds", hc.Hold); err != nil {
					c.logger.Warn("publish hold", zap.Error(err))
				}
			},
		},
	}
}

// Start launches the background workers. Embedders that only post
// transactions from request handlers may skip it, but then holds never
// expire and hot-account entries never flush.
func (c *Client) Start(ctx context.Context) error {
	return c.runner.Start(ctx)
}

// Stop shuts the workers down, waiting for in-flight ticks.
func (c *Client) Stop(ctx context.Context) error {
	return c.runner.Stop(ctx)
}

// Ping verifies database (and, when configured, Redis) connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.Ping(ctx); err != nil {
		return err
	}
	if c.bus != nil {
		return c.bus.Ping(ctx)
	}
	return nil
}

// Bus returns the Redis event bus, nil without Redis configured.
func (c *Client) Bus() *bus.Bus { return c.bus }

// KV returns the Redis key-value surface, nil without Redis configured.
func (c *Client) KV() *storage.KV { return c.kv }

// Ledger and account lifecycle.

func (c *Client) CreateLedger(ctx context.Context, name string, metadata map[string]any) (*ledger.Ledger, error) {
	return c.engine.CreateLedger(ctx, name, metadata)
}

func (c *Client) CreateAccount(ctx context.Context, in ledger.CreateAccountInput) (*ledger.Account, error) {
	return c.engine.CreateAccount(ctx, in)
}

func (c *Client) CreateSystemAccount(ctx context.Context, in ledger.CreateSystemAccountInput) (*ledger.SystemAccount, error) {
	return c.engine.CreateSystemAccount(ctx, in)
}

func (c *Client) GetAccount(ctx context.Context, ledgerID uuid.UUID, holderID string) (*ledger.Account, error) {
	return c.engine.GetAccount(ctx, ledgerID, holderID)
}

func (c *Client) GetSystemAccount(ctx context.Context, ledgerID uuid.UUID, identifier, currency string) (*ledger.SystemAccount, error) {
	return c.engine.GetSystemAccount(ctx, ledgerID, identifier, currency)
}

func (c *Client) FreezeAccount(ctx context.Context, ledgerID uuid.UUID, holderID, by, reason string) error {
	return c.engine.FreezeAccount(ctx, ledgerID, holderID, by, reason)
}

func (c *Client) UnfreezeAccount(ctx context.Context, ledgerID uuid.UUID, holderID, by, reason string) error {
	return c.engine.UnfreezeAccount(ctx, ledgerID, holderID, by, reason)
}

func (c *Client) CloseAccount(ctx context.Context, in engine.CloseAccountInput) error {
	return c.engine.CloseAccount(ctx, in)
}

// Posting operations. All are idempotent under their IdempotencyKey and
// reject duplicate references.

func (c *Client) Credit(ctx context.Context, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	return c.engine.Credit(ctx, in)
}

func (c *Client) Debit(ctx context.Context, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	return c.engine.Debit(ctx, in)
}

func (c *Client) ForceDebit(ctx context.Context, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	return c.engine.ForceDebit(ctx, in)
}

func (c *Client) Transfer(ctx context.Context, in ledger.TransferInput) (*ledger.TransactionResult, error) {
	return c.engine.Transfer(ctx, in)
}

func (c *Client) MultiTransfer(ctx context.Context, in ledger.MultiTransferInput) (*ledger.TransactionResult, error) {
	return c.engine.MultiTransfer(ctx, in)
}

func (c *Client) Journal(ctx context.Context, in ledger.JournalInput) (*ledger.TransactionResult, error) {
	return c.engine.Journal(ctx, in)
}

func (c *Client) Refund(ctx context.Context, in ledger.RefundInput) (*ledger.TransactionResult, error) {
	return c.engine.Refund(ctx, in)
}

func (c *Client) Correct(ctx context.Context, in ledger.CorrectInput) (*ledger.TransactionResult, error) {
	return c.engine.Correct(ctx, in)
}

func (c *Client) Adjust(ctx context.Context, in ledger.AdjustInput) (*ledger.TransactionResult, error) {
	return c.engine.Adjust(ctx, in)
}

// Two-phase holds.

func (c *Client) CreateHold(ctx context.Context, in ledger.CreateHoldInput) (*ledger.Hold, error) {
	return c.engine.CreateHold(ctx, in)
}

func (c *Client) CommitHold(ctx context.Context, in ledger.CommitHoldInput) (*ledger.TransactionResult, error) {
	return c.engine.CommitHold(ctx, in)
}

func (c *Client) VoidHold(ctx context.Context, ledgerID, holdID uuid.UUID, reason string) error {
	return c.engine.VoidHold(ctx, ledgerID, holdID, reason)
}

// Queries.

func (c *Client) GetTransaction(ctx context.Context, ledgerID, id uuid.UUID) (*ledger.TransactionResult, error) {
	return c.engine.GetTransaction(ctx, ledgerID, id)
}

func (c *Client) GetTransactionByReference(ctx context.Context, ledgerID uuid.UUID, reference string) (*ledger.TransactionResult, error) {
	return c.engine.GetTransactionByReference(ctx, ledgerID, reference)
}

func (c *Client) ListTransactions(ctx context.Context, f ledger.ListTransactionsFilter) ([]ledger.Transaction, error) {
	return c.engine.ListTransactions(ctx, f)
}

func (c *Client) ListEntries(ctx context.Context, ledgerID, transactionID uuid.UUID) ([]ledger.Entry, error) {
	return c.engine.ListEntries(ctx, ledgerID, transactionID)
}

func (c *Client) GetHold(ctx context.Context, ledgerID, id uuid.UUID) (*ledger.Hold, error) {
	return c.engine.GetHold(ctx, ledgerID, id)
}

func (c *Client) ListHolds(ctx context.Context, ledgerID, accountID uuid.UUID, status ledger.HoldStatus, limit int) ([]ledger.Hold, error) {
	return c.engine.ListHolds(ctx, ledgerID, accountID, status, limit)
}

func (c *Client) ListEvents(ctx context.Context, ledgerID uuid.UUID, aggregateType ledger.AggregateType, aggregateID uuid.UUID) ([]ledger.Event, error) {
	return c.engine.ListEvents(ctx, ledgerID, aggregateType, aggregateID)
}

// Integrity surfaces.

func (c *Client) ValidateLedger(ctx context.Context, ledgerID uuid.UUID) (*engine.EquationReport, error) {
	return c.engine.ValidateLedger(ctx, ledgerID)
}

func (c *Client) VerifyAggregateChain(ctx context.Context, ledgerID uuid.UUID, aggregateType ledger.AggregateType, aggregateID uuid.UUID) (eventstore.VerifyResult, error) {
	return c.engine.VerifyAggregateChain(ctx, ledgerID, aggregateType, aggregateID)
}

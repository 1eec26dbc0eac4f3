package summa

import (
	"context"
	"time"

	"github.com/ShivamGupta-SM/summa-sub004/internal/worker"
)

// registerWorkers wires the built-in maintenance tasks plus any workers
// contributed by plugins. A negative interval in Config disables that
// worker.
func (c *Client) registerWorkers() error {
	builtins := []worker.Worker{
		{
			ID:          "hold-expiry",
			Description: "releases inflight holds whose expiry has passed",
			Interval:    c.cfg.HoldExpiryInterval,
			// Not leased: each hold is re-checked under its row lock, so
			// overlapping sweeps across processes are harmless.
			Handler: func(ctx context.Context) error {
				_, err := c.engine.ExpireHolds(ctx, 100)
				return err
			},
		},
		{
			ID:            "idempotency-cleanup",
			Description:   "deletes expired idempotency records",
			Interval:      c.cfg.IdempotencyCleanupInterval,
			LeaseRequired: true,
			Handler:       c.cleanupIdempotency,
		},
		{
			ID:            "hot-account-flush",
			Description:   "folds pending hot-account entries into system account versions",
			Interval:      c.cfg.HotAccountFlushInterval,
			LeaseRequired: true,
			Handler:       c.flushHotAccounts,
		},
		{
			ID:            "hot-account-cleanup",
			Description:   "deletes processed hot-account entries past retention",
			Interval:      c.cfg.HotAccountCleanupInterval,
			LeaseRequired: true,
			Handler: func(ctx context.Context) error {
				_, err := c.engine.HotQueue().DeleteProcessed(ctx, c.cfg.HotAccountRetention, c.cfg.HotAccountBatchSize)
				return err
			},
		},
		{
			ID:            "chain-verification",
			Description:   "verifies event hash chains of recently written aggregates",
			Interval:      c.cfg.ChainVerifyInterval,
			LeaseRequired: true,
			Handler: func(ctx context.Context) error {
				_, err := c.engine.VerifyRecentChains(ctx, 50)
				return err
			},
		},
		{
			ID:            "chart-validation",
			Description:   "checks the accounting equation across every ledger",
			Interval:      c.cfg.ChartValidationInterval,
			LeaseRequired: true,
			Handler: func(ctx context.Context) error {
				_, err := c.engine.ValidateAllLedgers(ctx)
				return err
			},
		},
		{
			ID:          "lease-cleanup",
			Description: "removes worker leases expired past the stale age",
			Interval:    DefaultLeaseCleanupInterval,
			Handler: func(ctx context.Context) error {
				_, err := c.leases.DeleteStale(ctx, worker.StaleLeaseAge)
				return err
			},
		},
	}
	for _, w := range builtins {
		if w.Interval < 0 {
			continue
		}
		if err := c.runner.Register(w); err != nil {
			return err
		}
	}

	for _, pw := range c.engine.Hooks().Workers() {
		interval, err := worker.ParseInterval(pw.Interval)
		if err != nil {
			return err
		}
		if err := c.runner.Register(worker.Worker{
			ID:            pw.ID,
			Description:   pw.Description,
			Interval:      interval,
			LeaseRequired: pw.LeaseRequired,
			Handler:       pw.Handler,
		}); err != nil {
			return err
		}
	}
	return nil
}

// cleanupIdempotency drains expired records in batches so one tick
// cannot hold a long-running delete.
func (c *Client) cleanupIdempotency(ctx context.Context) error {
	const batch = 500
	var total int64
	for {
		n, err := c.engine.Idempotency().DeleteExpired(ctx, batch)
		if err != nil {
			c.metrics.ObserveIdempotencyCleanup(total, err)
			return err
		}
		total += n
		if n < batch {
			break
		}
		select {
		case <-ctx.Done():
			c.metrics.ObserveIdempotencyCleanup(total, ctx.Err())
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	c.metrics.ObserveIdempotencyCleanup(total, nil)
	return nil
}

// flushHotAccounts processes batches until the queue is drained or the
// batch comes back partial.
func (c *Client) flushHotAccounts(ctx context.Context) error {
	for {
		n, err := c.engine.HotQueue().ProcessBatch(ctx, c.cfg.HotAccountBatchSize)
		if err != nil {
			return err
		}
		if n < c.cfg.HotAccountBatchSize {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

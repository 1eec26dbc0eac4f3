// Package worker schedules the engine's periodic background tasks:
// hold expiry, idempotency cleanup, hot-account flushing, chain
// verification and any workers contributed by plugins. Leased workers
// run on at most one process per cluster per tick.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/metrics"
)

// DefaultLeaseTTLFactor is the lease TTL as a multiple of the worker's
// interval: long enough to survive one missed tick, short enough that a
// dead holder is replaced quickly.
const DefaultLeaseTTLFactor = 2

type Worker struct {
	ID            string
	Description   string
	Interval      time.Duration
	LeaseRequired bool
	Handler       func(ctx context.Context) error
}

type Runner struct {
	leases         LeaseStore
	logger         *zap.Logger
	metrics        *metrics.Metrics
	clock          clock.Clock
	holder         string
	leaseTTLFactor float64

	mu       sync.Mutex
	workers  []Worker
	ids      map[string]struct{}
	inflight map[string]*atomic.Bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	started  bool
	stopped  bool
}

func NewRunner(leases LeaseStore, logger *zap.Logger, m *metrics.Metrics, clk clock.Clock) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Runner{
		leases:         leases,
		logger:         logger,
		metrics:        m,
		clock:          clk,
		holder:         uuid.NewString(),
		leaseTTLFactor: DefaultLeaseTTLFactor,
		ids:            make(map[string]struct{}),
		inflight:       make(map[string]*atomic.Bool),
	}
}

// Holder identifies this runner instance in the lease table.
func (r *Runner) Holder() string { return r.holder }

// Register adds a worker. All registration happens before Start.
func (r *Runner) Register(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errs.New(errs.CodeConflict, "worker runner already started")
	}
	if w.ID == "" {
		return errs.New(errs.CodeInvalidArgument, "worker id must not be empty")
	}
	if _, dup := r.ids[w.ID]; dup {
		return errs.Newf(errs.CodeInvalidArgument, "duplicate worker id %q", w.ID)
	}
	if w.Interval <= 0 {
		return errs.Newf(errs.CodeInvalidArgument, "worker %q interval must be positive", w.ID)
	}
	if w.Handler == nil {
		return errs.Newf(errs.CodeInvalidArgument, "worker %q has no handler", w.ID)
	}
	if w.LeaseRequired && r.leases == nil {
		return errs.Newf(errs.CodeInvalidArgument, "worker %q requires a lease store", w.ID)
	}
	r.ids[w.ID] = struct{}{}
	r.workers = append(r.workers, w)
	r.inflight[w.ID] = &atomic.Bool{}
	return nil
}

// Start schedules every registered worker and returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errs.New(errs.CodeConflict, "worker runner already started")
	}
	r.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	g, runCtx := errgroup.WithContext(runCtx)
	r.group = g

	for _, w := range r.workers {
		r.logger.Info("scheduling worker",
			zap.String("worker", w.ID),
			zap.Duration("interval", w.Interval),
			zap.Bool("lease_required", w.LeaseRequired),
		)
		w := w
		g.Go(func() error {
			r.loop(runCtx, w)
			return nil
		})
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, w Worker) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, w)
		}
	}
}

func (r *Runner) tick(ctx context.Context, w Worker) {
	busy := r.inflight[w.ID]
	if !busy.CompareAndSwap(false, true) {
		r.logger.Warn("skipping tick, previous invocation still running", zap.String("worker", w.ID))
		return
	}
	defer busy.Store(false)

	if w.LeaseRequired {
		ttl := time.Duration(float64(w.Interval) * r.leaseTTLFactor)
		ok, err := r.leases.Acquire(ctx, w.ID, r.holder, ttl)
		if err != nil {
			r.logger.Warn("lease acquisition failed", zap.String("worker", w.ID), zap.Error(err))
			r.metrics.ObserveWorkerTick(w.ID, 0, err)
			return
		}
		if !ok {
			return
		}
	}

	start := r.clock.Now()
	err := r.invoke(ctx, w)
	dur := r.clock.Now().Sub(start)
	r.metrics.ObserveWorkerTick(w.ID, dur, err)
	if err != nil {
		r.logger.Error("worker tick failed", zap.String("worker", w.ID), zap.Error(err))
	}
}

// invoke runs the handler with a panic boundary: one bad tick must not
// tear down the runner.
func (r *Runner) invoke(ctx context.Context, w Worker) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errs.Newf(errs.CodeInternal, "worker %q panicked: %v", w.ID, rec)
		}
	}()
	return w.Handler(ctx)
}

// Stop cancels scheduling, waits for in-flight handlers to return and
// releases this holder's leases. Safe to call more than once.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	cancel := r.cancel
	group := r.group
	r.mu.Unlock()

	cancel()
	_ = group.Wait()
	if r.leases != nil {
		if err := r.leases.Release(ctx, r.holder); err != nil {
			r.logger.Warn("release worker leases", zap.Error(err))
			return err
		}
	}
	return nil
}

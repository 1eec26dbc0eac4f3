// Package metrics exposes the engine's prometheus instruments. A nil
// *Metrics is a valid no-op receiver so plumbing never has to branch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	operationsTotal      *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec
	lockRetriesTotal     prometheus.Counter
	idemReplaysTotal     prometheus.Counter
	idemCleanupRuns      *prometheus.CounterVec
	idemCleanupDeleted   prometheus.Counter
	hotBatchesTotal      *prometheus.CounterVec
	hotEntriesProcessed  prometheus.Counter
	hotEntriesPending    prometheus.Gauge
	holdsExpiredTotal    prometheus.Counter
	workerTicksTotal     *prometheus.CounterVec
	workerTickDuration   *prometheus.HistogramVec
	chainVerifyFailures  prometheus.Counter
	equationViolations   prometheus.Gauge
	eventsAppendedTotal  prometheus.Counter
	afterCommitQueueSize prometheus.Histogram
}

// New registers the engine's instruments on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// registry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Completed operations partitioned by type and result code.",
			},
			[]string{"operation", "code"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "summa",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency of engine operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		lockRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "balance",
				Name:      "lock_retries_total",
				Help:      "Row-lock NOWAIT retries performed by the balance manager.",
			},
		),
		idemReplaysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "idempotency",
				Name:      "replays_total",
				Help:      "Operations answered from a cached idempotency record.",
			},
		),
		idemCleanupRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "idempotency",
				Name:      "cleanup_runs_total",
				Help:      "Idempotency cleanup runs partitioned by result.",
			},
			[]string{"result"},
		),
		idemCleanupDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "idempotency",
				Name:      "cleanup_deleted_total",
				Help:      "Expired idempotency records deleted.",
			},
		),
		hotBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "hot_account",
				Name:      "batches_total",
				Help:      "Hot-account aggregation batches partitioned by result.",
			},
			[]string{"result"},
		),
		hotEntriesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "hot_account",
				Name:      "entries_processed_total",
				Help:      "Hot-account entries folded into system account versions.",
			},
		),
		hotEntriesPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "summa",
				Subsystem: "hot_account",
				Name:      "entries_pending",
				Help:      "Hot-account entries awaiting aggregation at last flush.",
			},
		),
		holdsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "holds",
				Name:      "expired_total",
				Help:      "Holds voided by the expiry worker.",
			},
		),
		workerTicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "worker",
				Name:      "ticks_total",
				Help:      "Worker ticks partitioned by worker id and result.",
			},
			[]string{"worker", "result"},
		),
		workerTickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "summa",
				Subsystem: "worker",
				Name:      "tick_duration_seconds",
				Help:      "Duration of worker handler invocations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"worker"},
		),
		chainVerifyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "events",
				Name:      "chain_verify_failures_total",
				Help:      "Hash-chain verification failures detected.",
			},
		),
		equationViolations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "summa",
				Subsystem: "chart",
				Name:      "equation_violations",
				Help:      "Ledgers failing the accounting-equation check at last run.",
			},
		),
		eventsAppendedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "summa",
				Subsystem: "events",
				Name:      "appended_total",
				Help:      "Events appended to aggregate streams.",
			},
		),
		afterCommitQueueSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "summa",
				Subsystem: "engine",
				Name:      "after_commit_queue_size",
				Help:      "Callbacks drained after each committed transaction.",
				Buckets:   []float64{0, 1, 2, 4, 8, 16},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.operationsTotal, m.operationDuration, m.lockRetriesTotal,
			m.idemReplaysTotal, m.idemCleanupRuns, m.idemCleanupDeleted,
			m.hotBatchesTotal, m.hotEntriesProcessed, m.hotEntriesPending,
			m.holdsExpiredTotal, m.workerTicksTotal, m.workerTickDuration,
			m.chainVerifyFailures, m.equationViolations, m.eventsAppendedTotal,
			m.afterCommitQueueSize,
		)
	}
	return m
}

func (m *Metrics) ObserveOperation(operation, code string, dur time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, code).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(dur.Seconds())
}

func (m *Metrics) ObserveLockRetry() {
	if m == nil {
		return
	}
	m.lockRetriesTotal.Inc()
}

func (m *Metrics) ObserveIdempotentReplay() {
	if m == nil {
		return
	}
	m.idemReplaysTotal.Inc()
}

func (m *Metrics) ObserveIdempotencyCleanup(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.idemCleanupRuns.WithLabelValues("error").Inc()
		return
	}
	m.idemCleanupRuns.WithLabelValues("success").Inc()
	if deleted > 0 {
		m.idemCleanupDeleted.Add(float64(deleted))
	}
}

func (m *Metrics) ObserveHotBatch(processed int, pending int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.hotBatchesTotal.WithLabelValues("error").Inc()
		return
	}
	m.hotBatchesTotal.WithLabelValues("success").Inc()
	m.hotEntriesProcessed.Add(float64(processed))
	m.hotEntriesPending.Set(float64(pending))
}

func (m *Metrics) ObserveHoldsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsExpiredTotal.Add(float64(n))
}

func (m *Metrics) ObserveWorkerTick(worker string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.workerTicksTotal.WithLabelValues(worker, result).Inc()
	m.workerTickDuration.WithLabelValues(worker).Observe(dur.Seconds())
}

func (m *Metrics) ObserveChainVerifyFailure() {
	if m == nil {
		return
	}
	m.chainVerifyFailures.Inc()
}

func (m *Metrics) SetEquationViolations(n int) {
	if m == nil {
		return
	}
	m.equationViolations.Set(float64(n))
}

func (m *Metrics) ObserveEventAppended() {
	if m == nil {
		return
	}
	m.eventsAppendedTotal.Inc()
}

func (m *Metrics) ObserveAfterCommitQueue(n int) {
	if m == nil {
		return
	}
	m.afterCommitQueueSize.Observe(float64(n))
}

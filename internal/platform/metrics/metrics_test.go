package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("credit", "OK", time.Millisecond)
	m.ObserveLockRetry()
	m.ObserveIdempotentReplay()
	m.ObserveIdempotencyCleanup(10, nil)
	m.ObserveHotBatch(5, 0, errors.New("boom"))
	m.ObserveHoldsExpired(1)
	m.ObserveWorkerTick("hold-expiry", time.Millisecond, nil)
	m.ObserveChainVerifyFailure()
	m.SetEquationViolations(0)
	m.ObserveEventAppended()
	m.ObserveAfterCommitQueue(3)
}

func TestAfterCommitQueueHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveAfterCommitQueue(0)
	m.ObserveAfterCommitQueue(5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "summa_engine_after_commit_queue_size" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 2 {
			t.Fatalf("sample count = %d, want 2", h.GetSampleCount())
		}
		if h.GetSampleSum() != 5 {
			t.Fatalf("sample sum = %v, want 5", h.GetSampleSum())
		}
		return
	}
	t.Fatalf("after_commit_queue_size histogram not registered")
}

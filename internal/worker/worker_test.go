package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"1.5h", 90 * time.Minute},
		{"1d", 24 * time.Hour},
		{"2 m", 2 * time.Minute},
	}
	for _, tc := range cases {
		got, err := ParseInterval(tc.in)
		if err != nil {
			t.Fatalf("ParseInterval(%q) = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseInterval(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseIntervalRejects(t *testing.T) {
	for _, in := range []string{"", "5", "m", "-5m", "5w", "5 minutes", "0s"} {
		if _, err := ParseInterval(in); !errs.IsCode(err, errs.CodeInvalidArgument) {
			t.Fatalf("ParseInterval(%q) = %v, want INVALID_ARGUMENT", in, err)
		}
	}
}

// stepClock is a manually advanced clock for lease expiry tests.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLeaseStore(t *testing.T) {
	clk := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryLeaseStore(clk)
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "hold-expiry", "proc-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}

	// A second holder is rejected while the lease is live.
	ok, err = s.Acquire(ctx, "hold-expiry", "proc-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("contended acquire = %v, %v, want false", ok, err)
	}

	// The owner renews freely.
	ok, err = s.Acquire(ctx, "hold-expiry", "proc-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("renew = %v, %v", ok, err)
	}

	// After expiry anyone can take over.
	clk.Advance(2 * time.Minute)
	ok, err = s.Acquire(ctx, "hold-expiry", "proc-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("takeover after expiry = %v, %v", ok, err)
	}

	// Release only drops the caller's leases.
	if _, err := s.Acquire(ctx, "chain-verification", "proc-a", time.Minute); err != nil {
		t.Fatalf("acquire second worker: %v", err)
	}
	if err := s.Release(ctx, "proc-b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = s.Acquire(ctx, "hold-expiry", "proc-c", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release = %v, %v", ok, err)
	}
	ok, err = s.Acquire(ctx, "chain-verification", "proc-c", time.Minute)
	if err != nil || ok {
		t.Fatalf("proc-a lease should have survived proc-b release")
	}
}

func TestMemoryLeaseStoreDeleteStale(t *testing.T) {
	clk := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryLeaseStore(clk)
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "w1", "proc-a", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := s.Acquire(ctx, "w2", "proc-a", 3*time.Hour); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// w1 expired two hours ago; w2 is still live.
	clk.Advance(2*time.Hour + time.Minute)
	n, err := s.DeleteStale(ctx, StaleLeaseAge)
	if err != nil {
		t.Fatalf("DeleteStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteStale = %d, want 1", n)
	}
}

func TestRunnerRegisterValidation(t *testing.T) {
	r := NewRunner(NewMemoryLeaseStore(nil), nil, nil, nil)
	handler := func(context.Context) error { return nil }

	cases := []struct {
		name string
		w    Worker
	}{
		{"empty id", Worker{Interval: time.Second, Handler: handler}},
		{"no interval", Worker{ID: "a", Handler: handler}},
		{"no handler", Worker{ID: "b", Interval: time.Second}},
	}
	for _, tc := range cases {
		if err := r.Register(tc.w); !errs.IsCode(err, errs.CodeInvalidArgument) {
			t.Fatalf("%s: Register = %v, want INVALID_ARGUMENT", tc.name, err)
		}
	}

	ok := Worker{ID: "ok", Interval: time.Second, Handler: handler}
	if err := r.Register(ok); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(ok); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("duplicate Register = %v, want INVALID_ARGUMENT", err)
	}

	noStore := NewRunner(nil, nil, nil, nil)
	leased := Worker{ID: "leased", Interval: time.Second, LeaseRequired: true, Handler: handler}
	if err := noStore.Register(leased); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("leased worker without store = %v, want INVALID_ARGUMENT", err)
	}
}

func TestRunnerTicksAndStops(t *testing.T) {
	r := NewRunner(NewMemoryLeaseStore(nil), nil, nil, nil)

	var mu sync.Mutex
	ticks := 0
	err := r.Register(Worker{
		ID:       "counter",
		Interval: 5 * time.Millisecond,
		Handler: func(context.Context) error {
			mu.Lock()
			ticks++
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); !errs.IsCode(err, errs.CodeConflict) {
		t.Fatalf("second Start = %v, want CONFLICT", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := ticks
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never ticked twice (ticks=%d)", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	mu.Lock()
	after := ticks
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	final := ticks
	mu.Unlock()
	if final != after {
		t.Fatalf("worker ticked after Stop: %d -> %d", after, final)
	}

	// Stop is idempotent.
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestRunnerSkipsOverlappingTicks(t *testing.T) {
	r := NewRunner(nil, nil, nil, nil)

	release := make(chan struct{})
	started := make(chan struct{}, 16)
	var mu sync.Mutex
	running := 0
	maxRunning := 0
	err := r.Register(Worker{
		ID:       "slow",
		Interval: 5 * time.Millisecond,
		Handler: func(context.Context) error {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
			started <- struct{}{}
			<-release
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	// Several ticks elapse while the first invocation blocks.
	time.Sleep(30 * time.Millisecond)
	close(release)
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Fatalf("maxRunning = %d, want 1", maxRunning)
	}
}

func TestRunnerRecoversFromPanics(t *testing.T) {
	r := NewRunner(nil, nil, nil, nil)

	var mu sync.Mutex
	calls := 0
	err := r.Register(Worker{
		ID:       "panicky",
		Interval: 5 * time.Millisecond,
		Handler: func(context.Context) error {
			mu.Lock()
			calls++
			mu.Unlock()
			panic("boom")
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 2 {
			return // panicked tick did not kill the loop
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker stopped after panic (calls=%d)", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

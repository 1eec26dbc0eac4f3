package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
)

// StaleLeaseAge is how old an expired lease must be before the cleanup
// worker deletes its row; holders that stale are presumed dead.
const StaleLeaseAge = time.Hour

// LeaseStore arbitrates exclusive ownership of leased workers across a
// cluster.
type LeaseStore interface {
	// Acquire takes or renews the lease on workerID for holder. It
	// succeeds when no lease exists, the existing lease has expired, or
	// holder already owns it.
	Acquire(ctx context.Context, workerID, holder string, ttl time.Duration) (bool, error)
	// Release drops every lease owned by holder.
	Release(ctx context.Context, holder string) error
	// DeleteStale removes leases expired for longer than age.
	DeleteStale(ctx context.Context, age time.Duration) (int64, error)
}

// PostgresLeaseStore keeps leases in the worker_lease table with a CAS
// upsert on the worker_id key.
type PostgresLeaseStore struct {
	db    *postgres.Adapter
	clock clock.Clock
}

func NewPostgresLeaseStore(db *postgres.Adapter, clk clock.Clock) *PostgresLeaseStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &PostgresLeaseStore{db: db, clock: clk}
}

func (s *PostgresLeaseStore) Acquire(ctx context.Context, workerID, holder string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	q := fmt.Sprintf(`
INSERT INTO %[1]s (worker_id, holder, acquired_at, lease_until)
VALUES ($1,$2,$3,$4)
ON CONFLICT (worker_id) DO UPDATE SET
  holder = EXCLUDED.holder,
  acquired_at = EXCLUDED.acquired_at,
  lease_until = EXCLUDED.lease_until
WHERE %[1]s.lease_until < $3 OR %[1]s.holder = EXCLUDED.holder
`, s.db.Tables.Table("worker_lease"))
	tag, err := s.db.Write(ctx).Exec(ctx, q, workerID, holder, now, now.Add(ttl))
	if err != nil {
		return false, postgres.MapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresLeaseStore) Release(ctx context.Context, holder string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE holder = $1`, s.db.Tables.Table("worker_lease"))
	_, err := s.db.Write(ctx).Exec(ctx, q, holder)
	return postgres.MapError(err)
}

func (s *PostgresLeaseStore) DeleteStale(ctx context.Context, age time.Duration) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE lease_until < $1`, s.db.Tables.Table("worker_lease"))
	tag, err := s.db.Write(ctx).Exec(ctx, q, s.clock.Now().Add(-age))
	if err != nil {
		return 0, postgres.MapError(err)
	}
	return tag.RowsAffected(), nil
}

// MemoryLeaseStore is an in-process LeaseStore for tests and for
// single-process embeddings that opt out of the database table.
type MemoryLeaseStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]memoryLease
}

type memoryLease struct {
	holder string
	until  time.Time
}

func NewMemoryLeaseStore(clk clock.Clock) *MemoryLeaseStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryLeaseStore{clock: clk, leases: make(map[string]memoryLease)}
}

func (s *MemoryLeaseStore) Acquire(_ context.Context, workerID, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	cur, held := s.leases[workerID]
	if held && cur.holder != holder && cur.until.After(now) {
		return false, nil
	}
	s.leases[workerID] = memoryLease{holder: holder, until: now.Add(ttl)}
	return true, nil
}

func (s *MemoryLeaseStore) Release(_ context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.leases {
		if l.holder == holder {
			delete(s.leases, id)
		}
	}
	return nil
}

func (s *MemoryLeaseStore) DeleteStale(_ context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-age)
	var n int64
	for id, l := range s.leases {
		if l.until.Before(cutoff) {
			delete(s.leases, id)
			n++
		}
	}
	return n, nil
}

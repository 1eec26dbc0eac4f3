// Package idempotency makes every mutating operation safe to retry: a
// caller-supplied key maps to the serialized result of the first
// successful execution until the record expires.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
)

const DefaultTTL = 24 * time.Hour

type Store struct {
	db    *postgres.Adapter
	ttl   time.Duration
	clock clock.Clock
}

func New(db *postgres.Adapter, ttl time.Duration, clk clock.Clock) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{db: db, ttl: ttl, clock: clk}
}

// Record is a cached operation result.
type Record struct {
	Key        string
	LedgerID   uuid.UUID
	Reference  string
	ResultData json.RawMessage
	ExpiresAt  time.Time
}

// Check looks up key within the caller's transaction. It returns the
// cached record when key exists unexpired with the same reference, nil
// when the key is unknown or expired, and CONFLICT when the key was
// used for a different reference.
func (s *Store) Check(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, key, reference string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	q := fmt.Sprintf(`
SELECT key, ledger_id, reference, result_data, expires_at
FROM %s
WHERE ledger_id = $1 AND key = $2
`, s.db.Tables.Table("idempotency_key"))
	var rec Record
	err := tx.QueryRow(ctx, q, ledgerID, key).Scan(
		&rec.Key, &rec.LedgerID, &rec.Reference, &rec.ResultData, &rec.ExpiresAt,
	)
	if err != nil {
		if errs.IsCode(postgres.MapError(err), errs.CodeNotFound) {
			return nil, nil
		}
		return nil, postgres.MapError(err)
	}
	if !rec.ExpiresAt.After(s.clock.Now()) {
		return nil, nil
	}
	if rec.Reference != reference {
		return nil, errs.New(errs.CodeConflict, "idempotency key reused for different operation")
	}
	return &rec, nil
}

// Save upserts the record at the end of a successful operation, inside
// the same transaction as its effects.
func (s *Store) Save(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, key, reference string, result any) error {
	if key == "" {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "serialize idempotency result", err)
	}
	q := fmt.Sprintf(`
INSERT INTO %s (key, ledger_id, reference, result_data, expires_at)
VALUES ($1,$2,$3,$4::jsonb,$5)
ON CONFLICT (ledger_id, key) DO UPDATE SET
  reference = EXCLUDED.reference,
  result_data = EXCLUDED.result_data,
  expires_at = EXCLUDED.expires_at
`, s.db.Tables.Table("idempotency_key"))
	_, err = tx.Exec(ctx, q, key, ledgerID, reference, string(payload), s.clock.Now().Add(s.ttl))
	return postgres.MapError(err)
}

// DeleteExpired removes up to batchSize expired records, oldest first.
// The cleanup worker calls it in a loop until it returns fewer rows
// than the batch size.
func (s *Store) DeleteExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	q := fmt.Sprintf(`
WITH doomed AS (
  SELECT ctid
  FROM %[1]s
  WHERE expires_at <= $1
  ORDER BY expires_at ASC
  LIMIT $2
)
DELETE FROM %[1]s
WHERE ctid IN (SELECT ctid FROM doomed)
`, s.db.Tables.Table("idempotency_key"))
	tag, err := s.db.Write(ctx).Exec(ctx, q, s.clock.Now(), batchSize)
	if err != nil {
		return 0, postgres.MapError(err)
	}
	return tag.RowsAffected(), nil
}

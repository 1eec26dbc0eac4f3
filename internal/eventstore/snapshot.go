package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

// Snapshot anchors incremental chain verification: events up to Version
// have been verified and their rolling hash is Hash.
type Snapshot struct {
	LedgerID   uuid.UUID
	AccountID  uuid.UUID
	Version    int64
	Hash       string
	EntryCount int64
	CreatedAt  time.Time
}

// LatestSnapshot returns the newest snapshot for the account, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, ledgerID, accountID uuid.UUID) (*Snapshot, error) {
	q := fmt.Sprintf(`
SELECT ledger_id, account_id, snapshot_version, snapshot_hash, entry_count, created_at
FROM %s
WHERE ledger_id = $1 AND account_id = $2
ORDER BY snapshot_version DESC
LIMIT 1
`, s.db.Tables.Table("hash_snapshot"))
	var snap Snapshot
	err := s.db.Read(ctx).QueryRow(ctx, q, ledgerID, accountID).Scan(
		&snap.LedgerID, &snap.AccountID, &snap.Version, &snap.Hash, &snap.EntryCount, &snap.CreatedAt,
	)
	if err != nil {
		if errs.IsCode(postgres.MapError(err), errs.CodeNotFound) {
			return nil, nil
		}
		return nil, postgres.MapError(err)
	}
	return &snap, nil
}

// WriteSnapshot records a verified chain position for the account. It
// refuses to move backwards.
func (s *Store) WriteSnapshot(ctx context.Context, ledgerID, accountID uuid.UUID, version int64, hash string, entryCount int64) error {
	prev, err := s.LatestSnapshot(ctx, ledgerID, accountID)
	if err != nil {
		return err
	}
	if prev != nil && version <= prev.Version {
		return nil
	}
	q := fmt.Sprintf(`
INSERT INTO %s (ledger_id, account_id, snapshot_version, snapshot_hash, entry_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (ledger_id, account_id, snapshot_version) DO NOTHING
`, s.db.Tables.Table("hash_snapshot"))
	_, err = s.db.Write(ctx).Exec(ctx, q, ledgerID, accountID, version, hash, entryCount, s.clock.Now())
	return postgres.MapError(err)
}

// SnapshotAggregate verifies the account's stream and, when intact,
// writes a snapshot at its head. Returns the verification result.
func (s *Store) SnapshotAggregate(ctx context.Context, ledgerID, accountID uuid.UUID) (VerifyResult, error) {
	events, err := s.List(ctx, ledgerID, ledger.AggregateAccount, accountID)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyEvents(events, "", s.secret)
	if !res.Valid {
		s.metrics.ObserveChainVerifyFailure()
		return res, errs.Newf(errs.CodeIntegrityViolation,
			"hash chain broken for account %s at version %d", accountID, res.BrokenAtVersion)
	}
	if len(events) == 0 {
		return res, nil
	}
	head := events[len(events)-1]
	if err := s.WriteSnapshot(ctx, ledgerID, accountID, head.AggregateVersion, head.Hash, int64(len(events))); err != nil {
		return res, err
	}
	return res, nil
}

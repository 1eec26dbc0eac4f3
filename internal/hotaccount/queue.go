// Package hotaccount absorbs the write rate of system accounts. Legs
// targeting a system account are queued instead of locking its row;
// a periodic batch folds pending entries into append-only
// system_account_version rows.
package hotaccount

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/metrics"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

const (
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 30 * time.Second
	DefaultRetentionHours = 72
)

type Queue struct {
	db      *postgres.Adapter
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(db *postgres.Adapter, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Queue {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{db: db, clock: clk, logger: logger, metrics: m}
}

// Entry is one queued system-account leg. Amount is signed: positive
// for credits to the system account, negative for debits.
type Entry struct {
	ID             uuid.UUID
	SequenceNumber int64
	LedgerID       uuid.UUID
	AccountID      uuid.UUID
	Amount         int64
	EntryType      ledger.EntryType
	TransactionID  uuid.UUID
}

// Enqueue inserts a pending entry inside the caller's transaction. The
// system account row is not touched.
func (q *Queue) Enqueue(ctx context.Context, tx *postgres.Tx, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	sql := fmt.Sprintf(`
INSERT INTO %s (id, ledger_id, account_id, amount, entry_type, transaction_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,'pending',$7)
`, q.db.Tables.Table("hot_account_entry"))
	_, err := tx.Exec(ctx, sql, e.ID, e.LedgerID, e.AccountID, e.Amount, string(e.EntryType), e.TransactionID, q.clock.Now())
	return postgres.MapError(err)
}

// Group is the aggregation of one account's pending entries within a
// batch.
type Group struct {
	AccountID   uuid.UUID
	LedgerID    uuid.UUID
	NetDelta    int64
	CreditDelta int64
	DebitDelta  int64
	EntryIDs    []uuid.UUID
	LastSeq     int64
}

// Aggregate folds entries into per-account groups, preserving first-seen
// account order. Pure; exercised directly by tests.
func Aggregate(entries []Entry) []Group {
	index := make(map[uuid.UUID]int, len(entries))
	var groups []Group
	for _, e := range entries {
		i, ok := index[e.AccountID]
		if !ok {
			i = len(groups)
			index[e.AccountID] = i
			groups = append(groups, Group{AccountID: e.AccountID, LedgerID: e.LedgerID})
		}
		g := &groups[i]
		g.NetDelta += e.Amount
		if e.EntryType == ledger.EntryCredit {
			g.CreditDelta += e.Amount
		} else {
			g.DebitDelta += -e.Amount
		}
		g.EntryIDs = append(g.EntryIDs, e.ID)
		if e.SequenceNumber > g.LastSeq {
			g.LastSeq = e.SequenceNumber
		}
	}
	return groups
}

// ProcessBatch claims up to batchSize pending entries with SKIP LOCKED,
// advances each touched system account by one version row, and marks
// the entries processed. The whole batch commits or rolls back as one;
// on rollback the entries stay pending for the next cycle.
func (q *Queue) ProcessBatch(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	processed := 0
	var failed *Group
	err := q.db.Transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		entries, err := q.claimPending(ctx, tx, batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		now := q.clock.Now()
		for _, g := range Aggregate(entries) {
			if err := q.applyGroup(ctx, tx, g, now); err != nil {
				failed = &g
				return err
			}
		}
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		mark := fmt.Sprintf(`
UPDATE %s SET status = 'processed', processed_at = $1 WHERE id = ANY($2)
`, q.db.Tables.Table("hot_account_entry"))
		if _, err := tx.Exec(ctx, mark, now, ids); err != nil {
			return postgres.MapError(err)
		}
		processed = len(entries)
		return nil
	})
	if err != nil {
		if failed != nil {
			q.RecordFailure(context.WithoutCancel(ctx), failed.LastSeq, failed.AccountID, err)
		}
		q.metrics.ObserveHotBatch(0, 0, err)
		return 0, err
	}
	pending, perr := q.PendingCount(ctx)
	if perr != nil {
		pending = -1
	}
	q.metrics.ObserveHotBatch(processed, pending, nil)
	return processed, nil
}

func (q *Queue) claimPending(ctx context.Context, tx *postgres.Tx, limit int) ([]Entry, error) {
	sql := fmt.Sprintf(`
SELECT id, sequence_number, ledger_id, account_id, amount, entry_type, transaction_id
FROM %s
WHERE status = 'pending'
ORDER BY sequence_number ASC
%s
LIMIT $1
`, q.db.Tables.Table("hot_account_entry"), q.db.Dialect.ForUpdateSkipLocked)
	rows, err := tx.Query(ctx, sql, limit)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var entryType string
		if err := rows.Scan(&e.ID, &e.SequenceNumber, &e.LedgerID, &e.AccountID, &e.Amount, &entryType, &e.TransactionID); err != nil {
			return nil, postgres.MapError(err)
		}
		e.EntryType = ledger.EntryType(entryType)
		out = append(out, e)
	}
	return out, postgres.MapError(rows.Err())
}

func (q *Queue) applyGroup(ctx context.Context, tx *postgres.Tx, g Group, now time.Time) error {
	lockSQL := fmt.Sprintf(`
SELECT version, balance, credit_balance, debit_balance
FROM %s
WHERE id = $1
%s
`, q.db.Tables.Table("system_account"), q.db.Dialect.ForUpdateClause)
	var version, bal, credit, debit int64
	if err := tx.QueryRow(ctx, lockSQL, g.AccountID).Scan(&version, &bal, &credit, &debit); err != nil {
		return postgres.MapError(err)
	}

	newVersion := version + 1
	newBal := bal + g.NetDelta
	newCredit := credit + g.CreditDelta
	newDebit := debit + g.DebitDelta

	insSQL := fmt.Sprintf(`
INSERT INTO %s (
  id, system_account_id, ledger_id, version, balance, credit_balance, debit_balance,
  change_type, entry_count, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,'batch_aggregate',$8,$9)
`, q.db.Tables.Table("system_account_version"))
	if _, err := tx.Exec(ctx, insSQL,
		uuid.New(), g.AccountID, g.LedgerID, newVersion, newBal, newCredit, newDebit,
		len(g.EntryIDs), now,
	); err != nil {
		return postgres.MapError(err)
	}

	updSQL := fmt.Sprintf(`
UPDATE %s
SET balance = $1, credit_balance = $2, debit_balance = $3, version = $4, updated_at = $5
WHERE id = $6
`, q.db.Tables.Table("system_account"))
	if _, err := tx.Exec(ctx, updSQL, newBal, newCredit, newDebit, newVersion, now, g.AccountID); err != nil {
		return postgres.MapError(err)
	}
	return nil
}

// PendingCount returns how many entries await aggregation.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	sql := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = 'pending'`,
		q.db.Tables.Table("hot_account_entry"))
	var n int64
	if err := q.db.Read(ctx).QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, postgres.MapError(err)
	}
	return n, nil
}

// PendingTotal sums pending entry amounts for one ledger, the term the
// global zero-sum check adds to account balances.
func (q *Queue) PendingTotal(ctx context.Context, ledgerID uuid.UUID) (int64, error) {
	sql := fmt.Sprintf(`
SELECT COALESCE(SUM(amount), 0) FROM %s WHERE ledger_id = $1 AND status = 'pending'
`, q.db.Tables.Table("hot_account_entry"))
	var n int64
	if err := q.db.Read(ctx).QueryRow(ctx, sql, ledgerID).Scan(&n); err != nil {
		return 0, postgres.MapError(err)
	}
	return n, nil
}

// DeleteProcessed removes processed entries older than retention, in
// batches.
func (q *Queue) DeleteProcessed(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cutoff := q.clock.Now().Add(-retention)
	sql := fmt.Sprintf(`
WITH doomed AS (
  SELECT ctid
  FROM %[1]s
  WHERE status = 'processed' AND processed_at <= $1
  ORDER BY processed_at ASC
  LIMIT $2
)
DELETE FROM %[1]s
WHERE ctid IN (SELECT ctid FROM doomed)
`, q.db.Tables.Table("hot_account_entry"))
	tag, err := q.db.Write(ctx).Exec(ctx, sql, cutoff, batchSize)
	if err != nil {
		return 0, postgres.MapError(err)
	}
	return tag.RowsAffected(), nil
}

// RecordFailure notes a sequence number whose batch keeps failing, for
// operator diagnostics. Written outside the batch transaction so the
// note survives the rollback.
func (q *Queue) RecordFailure(ctx context.Context, seq int64, accountID uuid.UUID, cause error) {
	sql := fmt.Sprintf(`
INSERT INTO %s (sequence_number, account_id, error, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (sequence_number) DO UPDATE SET error = EXCLUDED.error, created_at = EXCLUDED.created_at
`, q.db.Tables.Table("hot_account_failed_sequence"))
	if _, err := q.db.Write(ctx).Exec(ctx, sql, seq, accountID, cause.Error(), q.clock.Now()); err != nil {
		q.logger.Warn("record hot-account failure", zap.Int64("sequence", seq), zap.Error(err))
	}
}

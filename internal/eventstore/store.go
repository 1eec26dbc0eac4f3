// Package eventstore owns the append-only per-aggregate event streams
// and their tamper-evident hash chain.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/metrics"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

type Store struct {
	db      *postgres.Adapter
	secret  []byte
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(db *postgres.Adapter, hmacSecret []byte, clk clock.Clock, m *metrics.Metrics) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{db: db, secret: hmacSecret, clock: clk, metrics: m}
}

type AppendParams struct {
	LedgerID      uuid.UUID
	AggregateType ledger.AggregateType
	AggregateID   uuid.UUID
	EventType     string
	Data          any
	CorrelationID uuid.UUID
}

// Append writes the next event of an aggregate's stream. It must run
// inside the caller's transaction: the advisory lock that serializes
// stream writers is transaction-scoped, and the event must commit or
// roll back atomically with the state change it records.
func (s *Store) Append(ctx context.Context, tx *postgres.Tx, p AppendParams) (*ledger.Event, error) {
	if tx == nil {
		return nil, errs.New(errs.CodeInternal, "eventstore: append requires an open transaction")
	}
	lockKey := postgres.StreamLockKey(p.LedgerID, string(p.AggregateType), p.AggregateID)
	if err := tx.AdvisoryLock(ctx, lockKey); err != nil {
		return nil, err
	}

	prevVersion, prevHash, err := s.streamHead(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	canonical, err := Canonical(p.Data)
	if err != nil {
		return nil, err
	}
	ev := &ledger.Event{
		ID:               uuid.New(),
		LedgerID:         p.LedgerID,
		AggregateType:    p.AggregateType,
		AggregateID:      p.AggregateID,
		AggregateVersion: prevVersion + 1,
		EventType:        p.EventType,
		EventData:        json.RawMessage(canonical),
		CorrelationID:    p.CorrelationID,
		PrevHash:         prevHash,
		Hash:             ComputeHash(prevHash, canonical, s.secret),
		CreatedAt:        s.clock.Now(),
	}

	q := fmt.Sprintf(`
INSERT INTO %s (
  id, ledger_id, aggregate_type, aggregate_id, aggregate_version,
  event_type, event_data, correlation_id, hash, prev_hash, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,NULLIF($10,''),$11)
RETURNING sequence_number
`, s.db.Tables.Table("ledger_event"))
	err = tx.QueryRow(ctx, q,
		ev.ID, ev.LedgerID, string(ev.AggregateType), ev.AggregateID, ev.AggregateVersion,
		ev.EventType, string(ev.EventData), ev.CorrelationID, ev.Hash, ev.PrevHash, ev.CreatedAt,
	).Scan(&ev.SequenceNumber)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			// A racing writer slipped past the advisory lock. That lock is
			// supposed to make this impossible, so surface it loudly.
			return nil, errs.Wrap(errs.CodeConcurrencyConflict,
				"duplicate aggregate version despite stream lock", err)
		}
		return nil, postgres.MapError(err)
	}
	s.metrics.ObserveEventAppended()
	return ev, nil
}

func (s *Store) streamHead(ctx context.Context, tx *postgres.Tx, p AppendParams) (int64, string, error) {
	q := fmt.Sprintf(`
SELECT aggregate_version, hash
FROM %s
WHERE ledger_id = $1 AND aggregate_type = $2 AND aggregate_id = $3
ORDER BY aggregate_version DESC
LIMIT 1
`, s.db.Tables.Table("ledger_event"))
	var version int64
	var hash string
	err := tx.QueryRow(ctx, q, p.LedgerID, string(p.AggregateType), p.AggregateID).Scan(&version, &hash)
	if err != nil {
		if errs.IsCode(postgres.MapError(err), errs.CodeNotFound) {
			return 0, "", nil
		}
		return 0, "", postgres.MapError(err)
	}
	return version, hash, nil
}

// List returns an aggregate's events in version order.
func (s *Store) List(ctx context.Context, ledgerID uuid.UUID, aggregateType ledger.AggregateType, aggregateID uuid.UUID) ([]ledger.Event, error) {
	q := fmt.Sprintf(`
SELECT id, ledger_id, sequence_number, aggregate_type, aggregate_id, aggregate_version,
       event_type, event_data, correlation_id, hash, COALESCE(prev_hash, ''), created_at
FROM %s
WHERE ledger_id = $1 AND aggregate_type = $2 AND aggregate_id = $3
ORDER BY aggregate_version ASC
`, s.db.Tables.Table("ledger_event"))
	rows, err := s.db.Read(ctx).Query(ctx, q, ledgerID, string(aggregateType), aggregateID)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var ev ledger.Event
		var aggType string
		if err := rows.Scan(
			&ev.ID, &ev.LedgerID, &ev.SequenceNumber, &aggType, &ev.AggregateID, &ev.AggregateVersion,
			&ev.EventType, &ev.EventData, &ev.CorrelationID, &ev.Hash, &ev.PrevHash, &ev.CreatedAt,
		); err != nil {
			return nil, postgres.MapError(err)
		}
		ev.AggregateType = ledger.AggregateType(aggType)
		out = append(out, ev)
	}
	return out, postgres.MapError(rows.Err())
}

// listAfter returns events of one aggregate with version > after.
func (s *Store) listAfter(ctx context.Context, ledgerID uuid.UUID, aggregateType ledger.AggregateType, aggregateID uuid.UUID, after int64) ([]ledger.Event, error) {
	all, err := s.List(ctx, ledgerID, aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, ev := range all {
		if ev.AggregateVersion > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/eventstore"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

// CreateHold reserves funds on the source account. The reservation is
// carried in pending_debit; the posted balance does not move until the
// hold commits.
func (e *Engine) CreateHold(ctx context.Context, in ledger.CreateHoldInput) (*ledger.Hold, error) {
	if err := e.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(e.clock.Now()) {
		return nil, errs.New(errs.CodeInvalidArgument, "hold expiry must be in the future")
	}
	return runOp(e, ctx, "createHold", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.Hold, error) {
			srcID, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.SourceHolderID)
			if err != nil {
				return nil, err
			}
			var destID *uuid.UUID
			if in.DestinationHolderID != "" {
				id, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.DestinationHolderID)
				if err != nil {
					return nil, err
				}
				destID = &id
			}

			h := &ledger.Hold{
				ID:                   uuid.New(),
				LedgerID:             in.LedgerID,
				SourceAccountID:      srcID,
				DestinationAccountID: destID,
				Amount:               in.Amount,
				Currency:             in.Currency,
				Status:               ledger.HoldInflight,
				Reference:            in.Reference,
				Description:          in.Description,
				Metadata:             in.Metadata,
				ExpiresAt:            in.ExpiresAt,
				CreatedAt:            e.clock.Now(),
			}
			if err := e.hooks.BeforeHoldCreate(ctx, &plugin.HoldContext{LedgerID: in.LedgerID, Hold: h}); err != nil {
				return nil, err
			}

			src, err := e.balances.Lock(ctx, tx, in.LedgerID, srcID)
			if err != nil {
				return nil, err
			}
			if err := balance.CheckStatus(src); err != nil {
				return nil, err
			}
			if src.Currency != in.Currency {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"account currency %s does not match %s", src.Currency, in.Currency)
			}
			if err := balance.CheckDebit(src, in.Amount); err != nil {
				return nil, err
			}
			if _, err := e.balances.Apply(ctx, tx, src, balance.Delta{PendingDebit: in.Amount}); err != nil {
				return nil, err
			}
			if err := e.insertHold(ctx, tx, h); err != nil {
				return nil, err
			}

			data := ledger.HoldCreatedData{
				SourceAccountID: srcID.String(),
				Amount:          in.Amount,
				Reference:       in.Reference,
			}
			if destID != nil {
				data.DestinationAccountID = destID.String()
			}
			if in.ExpiresAt != nil {
				data.ExpiresAt = in.ExpiresAt.UTC().Format(time.RFC3339Nano)
			}
			if _, err := e.events.Append(ctx, tx, eventstore.AppendParams{
				LedgerID:      in.LedgerID,
				AggregateType: ledger.AggregateHold,
				AggregateID:   h.ID,
				EventType:     ledger.EventHoldCreated,
				Data:          data,
				CorrelationID: correlationID,
			}); err != nil {
				return nil, err
			}
			return h, nil
		})
}

// CommitHold settles an inflight hold: the reservation is released, the
// source is debited by the committed amount (capped at the reserved
// amount, so no overdraft re-check is needed) and the funds fan out to
// one or more destinations.
func (e *Engine) CommitHold(ctx context.Context, in ledger.CommitHoldInput) (*ledger.TransactionResult, error) {
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	return runOp(e, ctx, "commitHold", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			h, err := e.lockHold(ctx, tx, in.LedgerID, in.HoldID)
			if err != nil {
				return nil, err
			}
			if h.Status != ledger.HoldInflight {
				return nil, errs.Newf(errs.CodeConflict, "hold %s has status %s", h.ID, h.Status)
			}
			if h.ExpiresAt != nil && !h.ExpiresAt.After(e.clock.Now()) {
				return nil, errs.Newf(errs.CodeConflict, "hold %s has expired", h.ID)
			}

			committed := h.Amount
			if in.CommittedAmount != nil {
				committed = *in.CommittedAmount
			}
			if committed <= 0 || committed > h.Amount {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"committed amount %d must be in (0, %d]", committed, h.Amount)
			}

			dests := in.Destinations
			if len(dests) == 0 {
				if h.DestinationAccountID == nil {
					return nil, errs.New(errs.CodeInvalidArgument,
						"hold has no destination; commit must supply destinations")
				}
				dests = []ledger.HoldDestination{{AccountID: h.DestinationAccountID}}
			}
			explicit := make([]*int64, len(dests))
			for i, d := range dests {
				if (d.AccountID == nil) == (d.SystemIdentifier == "") {
					return nil, errs.Newf(errs.CodeInvalidArgument,
						"destination %d must target exactly one of account or system account", i)
				}
				explicit[i] = d.Amount
			}
			amounts, err := resolveDestinationAmounts(committed, explicit)
			if err != nil {
				return nil, err
			}

			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeTransfer, committed, h.Currency,
				in.Reference, h.Description, correlationID,
				map[string]any{"holdId": h.ID.String()}, e.clock.Now())
			t.SourceAccountID = &h.SourceAccountID
			if len(dests) == 1 && dests[0].AccountID != nil {
				t.DestinationAccountID = dests[0].AccountID
			}
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "commitHold", Transaction: t,
			}); err != nil {
				return nil, err
			}

			src, err := e.balances.Lock(ctx, tx, in.LedgerID, h.SourceAccountID)
			if err != nil {
				return nil, err
			}
			if src.Status == ledger.AccountClosed {
				return nil, errs.Newf(errs.CodeAccountClosed, "account %s is closed", src.ID)
			}
			srcChange, err := e.balances.Apply(ctx, tx, src, balance.Delta{
				Balance:      -committed,
				Debit:        committed,
				PendingDebit: -h.Amount,
			})
			if err != nil {
				return nil, err
			}
			legs := []postedLeg{userLeg(srcChange, ledger.EntryDebit, committed, h.Currency)}

			var destUserIDs []uuid.UUID
			for _, d := range dests {
				if d.AccountID != nil {
					destUserIDs = append(destUserIDs, *d.AccountID)
				}
			}
			locked, err := e.balances.LockMany(ctx, tx, in.LedgerID, destUserIDs)
			if err != nil {
				return nil, err
			}
			for i, d := range dests {
				if amounts[i] == 0 {
					continue
				}
				if d.AccountID != nil {
					a := locked[*d.AccountID]
					if err := balance.CheckStatus(a); err != nil {
						return nil, err
					}
					change, err := e.balances.Apply(ctx, tx, a, balance.Delta{Balance: amounts[i], Credit: amounts[i]})
					if err != nil {
						return nil, err
					}
					legs = append(legs, userLeg(change, ledger.EntryCredit, amounts[i], h.Currency))
					continue
				}
				sa, err := e.ensureSystemAccount(ctx, tx, in.LedgerID, d.SystemIdentifier, h.Currency)
				if err != nil {
					return nil, err
				}
				legs = append(legs, systemLeg(sa, ledger.EntryCredit, amounts[i], h.Currency))
			}

			if err := e.updateHold(ctx, tx, h.ID, ledger.HoldPosted, &committed); err != nil {
				return nil, err
			}
			if _, err := e.events.Append(ctx, tx, eventstore.AppendParams{
				LedgerID:      in.LedgerID,
				AggregateType: ledger.AggregateHold,
				AggregateID:   h.ID,
				EventType:     ledger.EventHoldCommitted,
				Data:          ledger.HoldCommittedData{CommittedAmount: committed, OriginalAmount: h.Amount},
				CorrelationID: correlationID,
			}); err != nil {
				return nil, err
			}

			h.Status = ledger.HoldPosted
			h.CommittedAmount = &committed
			hc := &plugin.HoldContext{LedgerID: in.LedgerID, Hold: h}
			tx.QueueAfterCommit(func() { e.hooks.AfterHoldCommit(context.WithoutCancel(ctx), hc) })
			return e.post(ctx, tx, "commitHold", t, legs)
		})
}

// VoidHold cancels an inflight hold and releases the reservation. No
// transaction is posted.
func (e *Engine) VoidHold(ctx context.Context, ledgerID, holdID uuid.UUID, reason string) error {
	return e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		h, err := e.lockHold(ctx, tx, ledgerID, holdID)
		if err != nil {
			return err
		}
		if h.Status != ledger.HoldInflight {
			return errs.Newf(errs.CodeConflict, "hold %s has status %s", h.ID, h.Status)
		}
		if err := e.releaseHold(ctx, tx, h); err != nil {
			return err
		}
		if err := e.updateHold(ctx, tx, h.ID, ledger.HoldVoided, nil); err != nil {
			return err
		}
		_, err = e.events.Append(ctx, tx, eventstore.AppendParams{
			LedgerID:      ledgerID,
			AggregateType: ledger.AggregateHold,
			AggregateID:   h.ID,
			EventType:     ledger.EventHoldVoided,
			Data:          ledger.HoldVoidedData{Reason: reason},
			CorrelationID: uuid.New(),
		})
		return err
	})
}

// ExpireHolds releases every inflight hold whose expiry has passed.
// Each hold gets its own transaction so one poisoned hold cannot block
// the sweep; the status re-check under lock makes the sweep safe to run
// concurrently with commits.
func (e *Engine) ExpireHolds(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	q := fmt.Sprintf(`
SELECT ledger_id, id FROM %s
WHERE status = 'inflight' AND expires_at IS NOT NULL AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2
`, e.db.Tables.Table("hold"))
	rows, err := e.db.Write(ctx).Query(ctx, q, e.clock.Now(), batchSize)
	if err != nil {
		return 0, postgres.MapError(err)
	}
	type candidate struct{ ledgerID, id uuid.UUID }
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.ledgerID, &c.id); err != nil {
			rows.Close()
			return 0, postgres.MapError(err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, postgres.MapError(err)
	}

	expired := 0
	for _, c := range candidates {
		err := e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
			h, err := e.lockHold(ctx, tx, c.ledgerID, c.id)
			if err != nil {
				return err
			}
			if h.Status != ledger.HoldInflight || h.ExpiresAt == nil || h.ExpiresAt.After(e.clock.Now()) {
				return nil
			}
			if err := e.releaseHold(ctx, tx, h); err != nil {
				return err
			}
			if err := e.updateHold(ctx, tx, h.ID, ledger.HoldExpired, nil); err != nil {
				return err
			}
			_, err = e.events.Append(ctx, tx, eventstore.AppendParams{
				LedgerID:      c.ledgerID,
				AggregateType: ledger.AggregateHold,
				AggregateID:   h.ID,
				EventType:     ledger.EventHoldExpired,
				Data:          ledger.HoldExpiredData{ExpiredAt: e.clock.Now().UTC().Format(time.RFC3339Nano)},
				CorrelationID: uuid.New(),
			})
			if err == nil {
				expired++
			}
			return err
		})
		if err != nil {
			e.logger.Warn("expire hold", zap.String("hold", c.id.String()), zap.Error(err))
		}
	}
	e.metrics.ObserveHoldsExpired(expired)
	return expired, nil
}

func (e *Engine) releaseHold(ctx context.Context, tx *postgres.Tx, h *ledger.Hold) error {
	src, err := e.balances.Lock(ctx, tx, h.LedgerID, h.SourceAccountID)
	if err != nil {
		return err
	}
	_, err = e.balances.Apply(ctx, tx, src, balance.Delta{PendingDebit: -h.Amount})
	return err
}

func (e *Engine) insertHold(ctx context.Context, tx *postgres.Tx, h *ledger.Hold) error {
	meta, err := marshalMetadata(h.Metadata)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
INSERT INTO %s (
  id, ledger_id, source_account_id, destination_account_id,
  amount, committed_amount, currency, status, reference, description,
  metadata, expires_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,$13)
`, e.db.Tables.Table("hold"))
	_, err = tx.Exec(ctx, q,
		h.ID, h.LedgerID, h.SourceAccountID, h.DestinationAccountID,
		h.Amount, h.CommittedAmount, h.Currency, string(h.Status), h.Reference, h.Description,
		meta, h.ExpiresAt, h.CreatedAt,
	)
	return postgres.MapError(err)
}

const holdColumns = `
id, ledger_id, source_account_id, destination_account_id,
amount, committed_amount, currency, status, reference, description,
metadata, expires_at, created_at
`

func scanHold(row interface{ Scan(...any) error }) (*ledger.Hold, error) {
	var h ledger.Hold
	var status string
	var meta []byte
	err := row.Scan(
		&h.ID, &h.LedgerID, &h.SourceAccountID, &h.DestinationAccountID,
		&h.Amount, &h.CommittedAmount, &h.Currency, &status, &h.Reference, &h.Description,
		&meta, &h.ExpiresAt, &h.CreatedAt,
	)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	h.Status = ledger.HoldStatus(status)
	h.Metadata = unmarshalMetadata(meta)
	return &h, nil
}

func (e *Engine) lockHold(ctx context.Context, tx *postgres.Tx, ledgerID, id uuid.UUID) (*ledger.Hold, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND id = $2 %s`,
		holdColumns, e.db.Tables.Table("hold"), e.db.Dialect.ForUpdateClause)
	h, err := scanHold(tx.QueryRow(ctx, q, ledgerID, id))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "hold %s not found", id)
		}
		return nil, err
	}
	return h, nil
}

func (e *Engine) updateHold(ctx context.Context, tx *postgres.Tx, id uuid.UUID, status ledger.HoldStatus, committed *int64) error {
	q := fmt.Sprintf(`
UPDATE %s SET status = $1, committed_amount = COALESCE($2, committed_amount) WHERE id = $3
`, e.db.Tables.Table("hold"))
	_, err := tx.Exec(ctx, q, string(status), committed, id)
	return postgres.MapError(err)
}

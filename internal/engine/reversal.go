package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

// Refund reverses a posted transaction in full: every leg is posted
// again with the opposite direction, the refund row carries the parent
// link, and the original moves to status reversed. Overdraft policy is
// not applied; a reversal must always be able to restore prior state.
func (e *Engine) Refund(ctx context.Context, in ledger.RefundInput) (*ledger.TransactionResult, error) {
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	return runOp(e, ctx, "refund", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			orig, err := e.lockTransaction(ctx, tx, in.LedgerID, in.TransactionID)
			if err != nil {
				return nil, err
			}
			if orig.Status != ledger.StatusPosted {
				return nil, errs.Newf(errs.CodeConflict,
					"transaction %s has status %s, only posted transactions can be refunded", orig.ID, orig.Status)
			}
			if orig.IsReversal {
				return nil, errs.New(errs.CodeConflict, "cannot refund a reversal")
			}

			origEntries, err := e.loadEntries(ctx, tx, in.LedgerID, orig.ID)
			if err != nil {
				return nil, err
			}
			if len(origEntries) == 0 {
				return nil, errs.Newf(errs.CodeInternal, "transaction %s has no entries", orig.ID)
			}

			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeRefund, orig.Amount, orig.Currency,
				in.Reference, in.Description, correlationID, nil, e.clock.Now())
			t.IsReversal = true
			parentID := orig.ID
			t.ParentID = &parentID
			t.SourceAccountID = orig.DestinationAccountID
			t.DestinationAccountID = orig.SourceAccountID
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "refund", Transaction: t,
			}); err != nil {
				return nil, err
			}

			legs, err := e.invertEntries(ctx, tx, in.LedgerID, origEntries, -1)
			if err != nil {
				return nil, err
			}
			if err := e.markReversed(ctx, tx, in.LedgerID, orig.ID); err != nil {
				return nil, err
			}
			return e.post(ctx, tx, "refund", t, legs)
		})
}

// Correct adjusts a posted transaction to a different amount by posting
// the signed difference over the original legs, linked by the parent
// id. Cross-currency originals cannot be corrected this way; refund and
// repost instead.
func (e *Engine) Correct(ctx context.Context, in ledger.CorrectInput) (*ledger.TransactionResult, error) {
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	if err := e.validateAmount(in.CorrectedAmount); err != nil {
		return nil, err
	}
	return runOp(e, ctx, "correct", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			orig, err := e.lockTransaction(ctx, tx, in.LedgerID, in.TransactionID)
			if err != nil {
				return nil, err
			}
			if orig.Status != ledger.StatusPosted {
				return nil, errs.Newf(errs.CodeConflict,
					"transaction %s has status %s, only posted transactions can be corrected", orig.ID, orig.Status)
			}
			if orig.IsReversal {
				return nil, errs.New(errs.CodeConflict, "cannot correct a reversal")
			}
			delta := in.CorrectedAmount - orig.Amount
			if delta == 0 {
				return nil, errs.New(errs.CodeInvalidArgument, "corrected amount equals the original amount")
			}

			origEntries, err := e.loadEntries(ctx, tx, in.LedgerID, orig.ID)
			if err != nil {
				return nil, err
			}
			for _, en := range origEntries {
				if en.ExchangeRate != nil {
					return nil, errs.New(errs.CodeInvalidArgument,
						"cannot correct a cross-currency transaction")
				}
			}

			amount := delta
			scale := int64(1) // same direction as the original legs
			if delta < 0 {
				amount = -delta
				scale = -1
			}
			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeCorrection, amount, orig.Currency,
				in.Reference, in.Description, correlationID, nil, e.clock.Now())
			t.IsReversal = scale < 0
			parentID := orig.ID
			t.ParentID = &parentID
			t.SourceAccountID = orig.SourceAccountID
			t.DestinationAccountID = orig.DestinationAccountID
			if scale < 0 {
				t.SourceAccountID, t.DestinationAccountID = t.DestinationAccountID, t.SourceAccountID
			}
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "correct", Transaction: t,
			}); err != nil {
				return nil, err
			}

			scaled := make([]ledger.Entry, len(origEntries))
			for i, en := range origEntries {
				en.Amount = amount
				scaled[i] = en
			}
			legs, err := e.invertEntries(ctx, tx, in.LedgerID, scaled, scale)
			if err != nil {
				return nil, err
			}
			return e.post(ctx, tx, "correct", t, legs)
		})
}

// invertEntries replays entries against their accounts. scale -1 posts
// the opposite direction of each entry (a reversal); scale 1 posts the
// same direction again. User accounts are locked in ascending id order;
// the overdraft policy is intentionally not applied.
func (e *Engine) invertEntries(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, entries []ledger.Entry, scale int64) ([]postedLeg, error) {
	var userIDs []uuid.UUID
	for _, en := range entries {
		if en.AccountID != nil {
			userIDs = append(userIDs, *en.AccountID)
		}
	}
	locked, err := e.balances.LockMany(ctx, tx, ledgerID, userIDs)
	if err != nil {
		return nil, err
	}

	legs := make([]postedLeg, 0, len(entries))
	for _, en := range entries {
		dir := en.EntryType
		if scale < 0 {
			if dir == ledger.EntryCredit {
				dir = ledger.EntryDebit
			} else {
				dir = ledger.EntryCredit
			}
		}
		if en.AccountID != nil {
			a := locked[*en.AccountID]
			if err := balance.CheckStatus(a); err != nil {
				return nil, err
			}
			var d balance.Delta
			if dir == ledger.EntryCredit {
				d = balance.Delta{Balance: en.Amount, Credit: en.Amount}
			} else {
				d = balance.Delta{Balance: -en.Amount, Debit: en.Amount}
			}
			change, err := e.balances.Apply(ctx, tx, a, d)
			if err != nil {
				return nil, err
			}
			legs = append(legs, userLeg(change, dir, en.Amount, en.Currency))
			continue
		}
		if en.SystemAccountID == nil {
			return nil, errs.New(errs.CodeInternal, "entry targets no account")
		}
		sa, err := e.systemAccountByID(ctx, tx, ledgerID, *en.SystemAccountID)
		if err != nil {
			return nil, err
		}
		legs = append(legs, systemLeg(sa, dir, en.Amount, en.Currency))
	}
	return legs, nil
}

const transactionColumns = `
id, ledger_id, reference, type, status, amount, currency, description,
source_account_id, destination_account_id, correlation_id,
is_reversal, parent_id, metadata, created_at, posted_at, effective_date
`

func scanTransaction(row interface{ Scan(...any) error }) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var typ, status string
	var meta []byte
	err := row.Scan(
		&t.ID, &t.LedgerID, &t.Reference, &typ, &status, &t.Amount, &t.Currency, &t.Description,
		&t.SourceAccountID, &t.DestinationAccountID, &t.CorrelationID,
		&t.IsReversal, &t.ParentID, &meta, &t.CreatedAt, &t.PostedAt, &t.EffectiveDate,
	)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	t.Type = ledger.TransactionType(typ)
	t.Status = ledger.TransactionStatus(status)
	t.Metadata = unmarshalMetadata(meta)
	return &t, nil
}

// lockTransaction reads the transaction under FOR UPDATE so concurrent
// reversals of the same parent serialize.
func (e *Engine) lockTransaction(ctx context.Context, tx *postgres.Tx, ledgerID, id uuid.UUID) (*ledger.Transaction, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND id = $2 %s`,
		transactionColumns, e.db.Tables.Table("transaction_record"), e.db.Dialect.ForUpdateClause)
	t, err := scanTransaction(tx.QueryRow(ctx, q, ledgerID, id))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "transaction %s not found", id)
		}
		return nil, err
	}
	return t, nil
}

func (e *Engine) markReversed(ctx context.Context, tx *postgres.Tx, ledgerID, id uuid.UUID) error {
	q := fmt.Sprintf(`UPDATE %s SET status = 'reversed' WHERE ledger_id = $1 AND id = $2`,
		e.db.Tables.Table("transaction_record"))
	_, err := tx.Exec(ctx, q, ledgerID, id)
	return postgres.MapError(err)
}

const entryColumns = `
id, ledger_id, transaction_id, account_id, system_account_id,
entry_type, amount, currency, balance_before, balance_after,
account_lock_version, is_hot_account,
original_amount, COALESCE(original_currency, ''), exchange_rate, created_at
`

func (e *Engine) loadEntries(ctx context.Context, tx *postgres.Tx, ledgerID, transactionID uuid.UUID) ([]ledger.Entry, error) {
	q := fmt.Sprintf(`
SELECT %s FROM %s WHERE ledger_id = $1 AND transaction_id = $2 ORDER BY created_at, id
`, entryColumns, e.db.Tables.Table("entry_record"))
	rows, err := tx.Query(ctx, q, ledgerID, transactionID)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var en ledger.Entry
		var entryType string
		if err := rows.Scan(
			&en.ID, &en.LedgerID, &en.TransactionID, &en.AccountID, &en.SystemAccountID,
			&entryType, &en.Amount, &en.Currency, &en.BalanceBefore, &en.BalanceAfter,
			&en.AccountLockVersion, &en.IsHotAccount,
			&en.OriginalAmount, &en.OriginalCurrency, &en.ExchangeRate, &en.CreatedAt,
		); err != nil {
			return nil, postgres.MapError(err)
		}
		en.EntryType = ledger.EntryType(entryType)
		out = append(out, en)
	}
	return out, postgres.MapError(rows.Err())
}

func (e *Engine) systemAccountByID(ctx context.Context, tx *postgres.Tx, ledgerID, id uuid.UUID) (*ledger.SystemAccount, error) {
	q := fmt.Sprintf(`
SELECT id, ledger_id, identifier, currency, balance, credit_balance, debit_balance, version, created_at, updated_at
FROM %s
WHERE ledger_id = $1 AND id = $2
`, e.db.Tables.Table("system_account"))
	var sa ledger.SystemAccount
	err := tx.QueryRow(ctx, q, ledgerID, id).Scan(
		&sa.ID, &sa.LedgerID, &sa.Identifier, &sa.Currency,
		&sa.Balance, &sa.CreditBalance, &sa.DebitBalance, &sa.Version,
		&sa.CreatedAt, &sa.UpdatedAt,
	)
	if err != nil {
		if errs.IsCode(postgres.MapError(err), errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "system account %s not found", id)
		}
		return nil, postgres.MapError(err)
	}
	return &sa, nil
}

func unmarshalMetadata(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

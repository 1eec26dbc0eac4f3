package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/eventstore"
	"github.com/ShivamGupta-SM/summa-sub004/internal/hotaccount"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

// postedLeg is one settled leg of a posting: either a user account leg
// whose balance change has already been applied, or a system-account
// leg routed through the hot-account queue.
type postedLeg struct {
	change           *balance.Change
	system           *ledger.SystemAccount
	entryType        ledger.EntryType
	amount           int64
	currency         string
	originalAmount   *int64
	originalCurrency string
	exchangeRate     *int64
}

func userLeg(c *balance.Change, t ledger.EntryType, amount int64, currency string) postedLeg {
	return postedLeg{change: c, entryType: t, amount: amount, currency: currency}
}

func systemLeg(sa *ledger.SystemAccount, t ledger.EntryType, amount int64, currency string) postedLeg {
	return postedLeg{system: sa, entryType: t, amount: amount, currency: currency}
}

// newTransaction builds the immutable posted row shared by every
// operation.
func (e *Engine) newTransaction(id uuid.UUID, ledgerID uuid.UUID, typ ledger.TransactionType, amount int64, currency, reference, description string, correlationID uuid.UUID, metadata map[string]any, effective time.Time) *ledger.Transaction {
	now := e.clock.Now()
	if effective.IsZero() {
		effective = now
	}
	posted := now
	return &ledger.Transaction{
		ID:            id,
		LedgerID:      ledgerID,
		Reference:     reference,
		Type:          typ,
		Status:        ledger.StatusPosted,
		Amount:        amount,
		Currency:      currency,
		Description:   description,
		CorrelationID: correlationID,
		Metadata:      metadata,
		CreatedAt:     now,
		PostedAt:      &posted,
		EffectiveDate: effective,
	}
}

func (e *Engine) insertTransaction(ctx context.Context, tx *postgres.Tx, t *ledger.Transaction) error {
	meta, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
INSERT INTO %s (
  id, ledger_id, reference, type, status, amount, currency, description,
  source_account_id, destination_account_id, correlation_id,
  is_reversal, parent_id, metadata, created_at, posted_at, effective_date
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16,$17)
`, e.db.Tables.Table("transaction_record"))
	_, err = tx.Exec(ctx, q,
		t.ID, t.LedgerID, t.Reference, string(t.Type), string(t.Status),
		t.Amount, t.Currency, t.Description,
		t.SourceAccountID, t.DestinationAccountID, t.CorrelationID,
		t.IsReversal, t.ParentID, meta, t.CreatedAt, t.PostedAt, t.EffectiveDate,
	)
	return postgres.MapError(err)
}

func (e *Engine) insertEntry(ctx context.Context, tx *postgres.Tx, en *ledger.Entry) error {
	q := fmt.Sprintf(`
INSERT INTO %s (
  id, ledger_id, transaction_id, account_id, system_account_id,
  entry_type, amount, currency, balance_before, balance_after,
  account_lock_version, is_hot_account,
  original_amount, original_currency, exchange_rate, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULLIF($14,''),$15,$16)
`, e.db.Tables.Table("entry_record"))
	_, err := tx.Exec(ctx, q,
		en.ID, en.LedgerID, en.TransactionID, en.AccountID, en.SystemAccountID,
		string(en.EntryType), en.Amount, en.Currency, en.BalanceBefore, en.BalanceAfter,
		en.AccountLockVersion, en.IsHotAccount,
		en.OriginalAmount, en.OriginalCurrency, en.ExchangeRate, en.CreatedAt,
	)
	return postgres.MapError(err)
}

// post writes the transaction, its entries, the hot-queue entries for
// system legs and the TransactionPosted event, then queues the
// after-commit hook dispatch. The caller has already applied every user
// leg under row locks.
func (e *Engine) post(ctx context.Context, tx *postgres.Tx, op string, t *ledger.Transaction, legs []postedLeg) (*ledger.TransactionResult, error) {
	if err := e.insertTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	entries := make([]ledger.Entry, 0, len(legs))
	for _, l := range legs {
		en := ledger.Entry{
			ID:               uuid.New(),
			LedgerID:         t.LedgerID,
			TransactionID:    t.ID,
			EntryType:        l.entryType,
			Amount:           l.amount,
			Currency:         l.currency,
			OriginalAmount:   l.originalAmount,
			OriginalCurrency: l.originalCurrency,
			ExchangeRate:     l.exchangeRate,
			CreatedAt:        now,
		}
		switch {
		case l.change != nil:
			id := l.change.Account.ID
			en.AccountID = &id
			before, after, lv := l.change.Before, l.change.After, l.change.LockVersion
			en.BalanceBefore = &before
			en.BalanceAfter = &after
			en.AccountLockVersion = &lv
		case l.system != nil:
			id := l.system.ID
			en.SystemAccountID = &id
			en.IsHotAccount = true
			signed := l.amount
			if l.entryType == ledger.EntryDebit {
				signed = -l.amount
			}
			if err := e.hot.Enqueue(ctx, tx, hotaccount.Entry{
				LedgerID:      t.LedgerID,
				AccountID:     l.system.ID,
				Amount:        signed,
				EntryType:     l.entryType,
				TransactionID: t.ID,
			}); err != nil {
				return nil, err
			}
		default:
			return nil, errs.New(errs.CodeInternal, "posted leg targets no account")
		}
		if err := e.insertEntry(ctx, tx, &en); err != nil {
			return nil, err
		}
		entries = append(entries, en)
	}

	data := ledger.TransactionPostedData{
		PostedAt: t.PostedAt.UTC().Format(time.RFC3339Nano),
		Entries:  make([]ledger.PostedEntryData, 0, len(entries)),
	}
	for _, en := range entries {
		ped := ledger.PostedEntryData{
			EntryType:     string(en.EntryType),
			Amount:        en.Amount,
			BalanceBefore: en.BalanceBefore,
			BalanceAfter:  en.BalanceAfter,
		}
		if en.AccountID != nil {
			ped.AccountID = en.AccountID.String()
		} else if en.SystemAccountID != nil {
			ped.AccountID = en.SystemAccountID.String()
		}
		data.Entries = append(data.Entries, ped)
	}
	if _, err := e.events.Append(ctx, tx, eventstore.AppendParams{
		LedgerID:      t.LedgerID,
		AggregateType: ledger.AggregateTransaction,
		AggregateID:   t.ID,
		EventType:     ledger.EventTransactionPosted,
		Data:          data,
		CorrelationID: t.CorrelationID,
	}); err != nil {
		return nil, err
	}

	res := &ledger.TransactionResult{Transaction: t, Entries: entries}
	tc := &plugin.TransactionContext{LedgerID: t.LedgerID, Operation: op, Transaction: t, Entries: entries}
	tx.QueueAfterCommit(func() { e.hooks.AfterTransaction(context.WithoutCancel(ctx), tc) })
	return res, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", errs.Wrap(errs.CodeInvalidArgument, "serialize metadata", err)
	}
	return string(b), nil
}

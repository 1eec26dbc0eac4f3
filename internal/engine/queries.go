package engine

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

const defaultListLimit = 100

// GetTransaction returns one transaction with its entries.
func (e *Engine) GetTransaction(ctx context.Context, ledgerID, id uuid.UUID) (*ledger.TransactionResult, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND id = $2`,
		transactionColumns, e.db.Tables.Table("transaction_record"))
	t, err := scanTransaction(e.db.Read(ctx).QueryRow(ctx, q, ledgerID, id))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "transaction %s not found", id)
		}
		return nil, err
	}
	entries, err := e.listEntriesRead(ctx, ledgerID, id)
	if err != nil {
		return nil, err
	}
	return &ledger.TransactionResult{Transaction: t, Entries: entries}, nil
}

// GetTransactionByReference resolves the ledger-unique reference.
func (e *Engine) GetTransactionByReference(ctx context.Context, ledgerID uuid.UUID, reference string) (*ledger.TransactionResult, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND reference = $2`,
		transactionColumns, e.db.Tables.Table("transaction_record"))
	t, err := scanTransaction(e.db.Read(ctx).QueryRow(ctx, q, ledgerID, reference))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "transaction with reference %q not found", reference)
		}
		return nil, err
	}
	entries, err := e.listEntriesRead(ctx, ledgerID, t.ID)
	if err != nil {
		return nil, err
	}
	return &ledger.TransactionResult{Transaction: t, Entries: entries}, nil
}

// ListTransactions pages through transactions newest-first using a
// keyset cursor: AfterID names the last transaction of the previous
// page.
func (e *Engine) ListTransactions(ctx context.Context, f ledger.ListTransactionsFilter) ([]ledger.Transaction, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	table := e.db.Tables.Table("transaction_record")
	b := sq.Select("id", "ledger_id", "reference", "type", "status", "amount", "currency", "description",
		"source_account_id", "destination_account_id", "correlation_id",
		"is_reversal", "parent_id", "metadata", "created_at", "posted_at", "effective_date").
		From(table).
		Where(sq.Eq{"ledger_id": f.LedgerID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)
	if f.Type != "" {
		b = b.Where(sq.Eq{"type": string(f.Type)})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.AccountID != nil {
		b = b.Where(sq.Or{
			sq.Eq{"source_account_id": *f.AccountID},
			sq.Eq{"destination_account_id": *f.AccountID},
		})
	}
	if f.AfterID != nil {
		cursor := fmt.Sprintf(`(created_at, id) < (SELECT created_at, id FROM %s WHERE id = ?)`, table)
		b = b.Where(sq.Expr(cursor, *f.AfterID))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "build transaction query", err)
	}
	rows, err := e.db.Read(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, postgres.MapError(rows.Err())
}

// ListEntries returns the entries of one transaction.
func (e *Engine) ListEntries(ctx context.Context, ledgerID, transactionID uuid.UUID) ([]ledger.Entry, error) {
	return e.listEntriesRead(ctx, ledgerID, transactionID)
}

// listEntriesRead is loadEntries against the read path rather than an
// open transaction.
func (e *Engine) listEntriesRead(ctx context.Context, ledgerID, transactionID uuid.UUID) ([]ledger.Entry, error) {
	q := fmt.Sprintf(`
SELECT %s FROM %s WHERE ledger_id = $1 AND transaction_id = $2 ORDER BY created_at, id
`, entryColumns, e.db.Tables.Table("entry_record"))
	rows, err := e.db.Read(ctx).Query(ctx, q, ledgerID, transactionID)
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

// GetHold returns one hold.
func (e *Engine) GetHold(ctx context.Context, ledgerID, id uuid.UUID) (*ledger.Hold, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND id = $2`,
		holdColumns, e.db.Tables.Table("hold"))
	h, err := scanHold(e.db.Read(ctx).QueryRow(ctx, q, ledgerID, id))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "hold %s not found", id)
		}
		return nil, err
	}
	return h, nil
}

// ListHolds returns an account's holds, optionally filtered by status,
// newest first.
func (e *Engine) ListHolds(ctx context.Context, ledgerID, accountID uuid.UUID, status ledger.HoldStatus, limit int) ([]ledger.Hold, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	b := sq.Select("id", "ledger_id", "source_account_id", "destination_account_id",
		"amount", "committed_amount", "currency", "status", "reference", "description",
		"metadata", "expires_at", "created_at").
		From(e.db.Tables.Table("hold")).
		Where(sq.Eq{"ledger_id": ledgerID, "source_account_id": accountID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)
	if status != "" {
		b = b.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "build hold query", err)
	}
	rows, err := e.db.Read(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []ledger.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, postgres.MapError(rows.Err())
}

// ListEvents returns the event stream of one aggregate in version
// order.
func (e *Engine) ListEvents(ctx context.Context, ledgerID uuid.UUID, aggregateType ledger.AggregateType, aggregateID uuid.UUID) ([]ledger.Event, error) {
	return e.events.List(ctx, ledgerID, aggregateType, aggregateID)
}

// Package balance mutates account balances: always inside a
// transaction, always under a row lock, always paired with an
// append-only versioned balance row.
package balance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/clock"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

type LockMode string

const (
	LockWait   LockMode = "wait"
	LockNowait LockMode = "nowait"
	// LockOptimistic is reserved in configuration; its retry semantics
	// are not implemented and New rejects it.
	LockOptimistic LockMode = "optimistic"
)

type Manager struct {
	db     *postgres.Adapter
	mode   LockMode
	secret []byte
	clock  clock.Clock
}

func New(db *postgres.Adapter, mode LockMode, hmacSecret []byte, clk clock.Clock) (*Manager, error) {
	switch mode {
	case "":
		mode = LockWait
	case LockWait, LockNowait:
	case LockOptimistic:
		return nil, errs.New(errs.CodeInvalidArgument, "balance: optimistic lock mode is reserved and not implemented")
	default:
		return nil, errs.Newf(errs.CodeInvalidArgument, "balance: unknown lock mode %q", mode)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{db: db, mode: mode, secret: hmacSecret, clock: clk}, nil
}

const accountColumns = `
id, ledger_id, holder_id, holder_type, status, currency,
balance, credit_balance, debit_balance, pending_credit, pending_debit,
allow_overdraft, overdraft_limit, COALESCE(account_type, ''), COALESCE(normal_balance, 'credit'),
lock_version, created_at, updated_at
`

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var a ledger.Account
	var holderType, status, normal string
	err := row.Scan(
		&a.ID, &a.LedgerID, &a.HolderID, &holderType, &status, &a.Currency,
		&a.Balance, &a.CreditBalance, &a.DebitBalance, &a.PendingCredit, &a.PendingDebit,
		&a.AllowOverdraft, &a.OverdraftLimit, &a.AccountType, &normal,
		&a.LockVersion, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	a.HolderType = ledger.HolderType(holderType)
	a.Status = ledger.AccountStatus(status)
	a.NormalBalance = ledger.NormalBalance(normal)
	return &a, nil
}

// GetByHolder reads an account without locking it.
func (m *Manager) GetByHolder(ctx context.Context, ledgerID uuid.UUID, holderID string) (*ledger.Account, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND holder_id = $2`,
		accountColumns, m.db.Tables.Table("account_balance"))
	a, err := scanAccount(m.db.Read(ctx).QueryRow(ctx, q, ledgerID, holderID))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "account for holder %q not found", holderID)
		}
		return nil, err
	}
	return a, nil
}

// Get reads an account by id without locking it.
func (m *Manager) Get(ctx context.Context, ledgerID, accountID uuid.UUID) (*ledger.Account, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND id = $2`,
		accountColumns, m.db.Tables.Table("account_balance"))
	a, err := scanAccount(m.db.Read(ctx).QueryRow(ctx, q, ledgerID, accountID))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "account %s not found", accountID)
		}
		return nil, err
	}
	return a, nil
}

// Lock acquires the row lock on one account inside tx. In nowait mode a
// held lock surfaces immediately as LOCK_TIMEOUT; the engine reruns the
// whole transaction with backoff.
func (m *Manager) Lock(ctx context.Context, tx *postgres.Tx, ledgerID, accountID uuid.UUID) (*ledger.Account, error) {
	clause := m.db.Dialect.ForUpdateClause
	if m.mode == LockNowait {
		clause = m.db.Dialect.ForUpdateNowait
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE ledger_id = $1 AND id = $2 %s`,
		accountColumns, m.db.Tables.Table("account_balance"), clause)
	a, err := scanAccount(tx.QueryRow(ctx, q, ledgerID, accountID))
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "account %s not found", accountID)
		}
		return nil, err
	}
	return a, nil
}

// LockMany locks the given accounts in ascending UUID order, the
// deadlock-avoidance order used everywhere in the engine.
func (m *Manager) LockMany(ctx context.Context, tx *postgres.Tx, ledgerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	ordered := SortUUIDs(ids)
	out := make(map[uuid.UUID]*ledger.Account, len(ordered))
	for _, id := range ordered {
		if _, done := out[id]; done {
			continue
		}
		a, err := m.Lock(ctx, tx, ledgerID, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

// Delta is the set of column adjustments applied in one mutation.
// Balance is derived from Credit-Debit by the caller; it is passed
// explicitly so debit-normal accounts can flip the sign.
type Delta struct {
	Balance       int64
	Credit        int64
	Debit         int64
	PendingCredit int64
	PendingDebit  int64
}

// Change captures the before/after balances of one applied delta for
// entry rows and event payloads.
type Change struct {
	Account     *ledger.Account
	Before      int64
	After       int64
	LockVersion int64
}

// Apply writes the delta to the locked account row, bumps lock_version,
// appends the versioned balance row and optionally its HMAC checksum.
// The in-memory account is advanced to the new state.
func (m *Manager) Apply(ctx context.Context, tx *postgres.Tx, a *ledger.Account, d Delta) (*Change, error) {
	before := a.Balance
	now := m.clock.Now()

	q := fmt.Sprintf(`
UPDATE %s
SET balance = balance + $1,
    credit_balance = credit_balance + $2,
    debit_balance = debit_balance + $3,
    pending_credit = pending_credit + $4,
    pending_debit = pending_debit + $5,
    lock_version = lock_version + 1,
    updated_at = $6
WHERE id = $7 AND lock_version = $8
`, m.db.Tables.Table("account_balance"))
	tag, err := tx.Exec(ctx, q,
		d.Balance, d.Credit, d.Debit, d.PendingCredit, d.PendingDebit,
		now, a.ID, a.LockVersion,
	)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		// We hold the row lock, so the version can only mismatch if the
		// caller reused a stale snapshot of the account.
		return nil, errs.Newf(errs.CodeConcurrencyConflict, "stale lock_version for account %s", a.ID)
	}

	a.Balance += d.Balance
	a.CreditBalance += d.Credit
	a.DebitBalance += d.Debit
	a.PendingCredit += d.PendingCredit
	a.PendingDebit += d.PendingDebit
	a.LockVersion++
	a.UpdatedAt = now

	vq := fmt.Sprintf(`
INSERT INTO %s (
  id, account_id, ledger_id, version, balance, credit_balance, debit_balance,
  pending_credit, pending_debit, checksum, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11)
`, m.db.Tables.Table("account_balance_version"))
	_, err = tx.Exec(ctx, vq,
		uuid.New(), a.ID, a.LedgerID, a.LockVersion,
		a.Balance, a.CreditBalance, a.DebitBalance, a.PendingCredit, a.PendingDebit,
		m.checksum(a), now,
	)
	if err != nil {
		return nil, postgres.MapError(err)
	}

	return &Change{Account: a, Before: before, After: a.Balance, LockVersion: a.LockVersion}, nil
}

// checksum computes the audit HMAC over (id, balance, version); empty
// without a configured secret.
func (m *Manager) checksum(a *ledger.Account) string {
	if len(m.secret) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s|%d|%d", a.ID, a.Balance, a.LockVersion)
	return hex.EncodeToString(mac.Sum(nil))
}

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/eventstore"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/logging"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

// CreateLedger creates the tenant boundary that every account,
// transaction and event belongs to.
func (e *Engine) CreateLedger(ctx context.Context, name string, metadata map[string]any) (*ledger.Ledger, error) {
	if name == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "ledger name must not be empty")
	}
	l := &ledger.Ledger{ID: uuid.New(), Name: name, Metadata: metadata, CreatedAt: e.clock.Now()}
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
INSERT INTO %s (id, name, metadata, created_at) VALUES ($1,$2,$3::jsonb,$4)
`, e.db.Tables.Table("ledger"))
	if _, err := e.db.Write(ctx).Exec(ctx, q, l.ID, l.Name, meta, l.CreatedAt); err != nil {
		return nil, postgres.MapError(err)
	}
	return l, nil
}

// CreateAccount creates a user account. The holder id is unique within
// the ledger; creating the same holder twice is CONFLICT.
func (e *Engine) CreateAccount(ctx context.Context, in ledger.CreateAccountInput) (*ledger.Account, error) {
	if in.HolderID == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "holder id must not be empty")
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	switch in.HolderType {
	case "":
		in.HolderType = ledger.HolderIndividual
	case ledger.HolderIndividual, ledger.HolderOrganization, ledger.HolderSystem:
	default:
		return nil, errs.Newf(errs.CodeInvalidArgument, "unknown holder type %q", in.HolderType)
	}
	if in.NormalBalance == "" {
		in.NormalBalance = ledger.NormalCredit
	}
	if in.OverdraftLimit < 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "overdraft limit must not be negative")
	}

	now := e.clock.Now()
	a := &ledger.Account{
		ID:             uuid.New(),
		LedgerID:       in.LedgerID,
		HolderID:       in.HolderID,
		HolderType:     in.HolderType,
		Status:         ledger.AccountActive,
		Currency:       ledger.NormalizeCurrency(in.Currency),
		AllowOverdraft: in.AllowOverdraft,
		OverdraftLimit: in.OverdraftLimit,
		AccountType:    in.AccountType,
		NormalBalance:  in.NormalBalance,
		Indicator:      in.Indicator,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.hooks.BeforeAccountCreate(ctx, &plugin.AccountContext{LedgerID: in.LedgerID, Account: a}); err != nil {
		return nil, err
	}
	meta, err := marshalMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	err = e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		q := fmt.Sprintf(`
INSERT INTO %s (
  id, ledger_id, holder_id, holder_type, status, currency,
  balance, credit_balance, debit_balance, pending_credit, pending_debit,
  allow_overdraft, overdraft_limit, account_type, normal_balance,
  indicator, lock_version, metadata, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,0,0,0,0,0,$7,$8,NULLIF($9,''),$10,NULLIF($11,''),0,$12::jsonb,$13,$13)
`, e.db.Tables.Table("account_balance"))
		if _, err := tx.Exec(ctx, q,
			a.ID, a.LedgerID, a.HolderID, string(a.HolderType), string(a.Status), a.Currency,
			a.AllowOverdraft, a.OverdraftLimit, a.AccountType, string(a.NormalBalance),
			a.Indicator, meta, now,
		); err != nil {
			mapped := postgres.MapError(err)
			if errs.IsCode(mapped, errs.CodeConflict) {
				return errs.Newf(errs.CodeConflict, "account for holder %q already exists", a.HolderID)
			}
			return mapped
		}
		_, err := e.events.Append(ctx, tx, eventstore.AppendParams{
			LedgerID:      a.LedgerID,
			AggregateType: ledger.AggregateAccount,
			AggregateID:   a.ID,
			EventType:     ledger.EventAccountCreated,
			Data: ledger.AccountCreatedData{
				HolderID:       a.HolderID,
				HolderType:     string(a.HolderType),
				Currency:       a.Currency,
				Indicator:      a.Indicator,
				AllowOverdraft: a.AllowOverdraft,
			},
			CorrelationID: uuid.New(),
		})
		if err != nil {
			return err
		}
		ac := &plugin.AccountContext{LedgerID: a.LedgerID, Account: a}
		tx.QueueAfterCommit(func() { e.hooks.AfterAccountCreate(context.WithoutCancel(ctx), ac) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("account created",
		zap.String("ledger", a.LedgerID.String()),
		zap.String("account", a.ID.String()),
		zap.String("holder", a.HolderID),
		zap.String("currency", a.Currency),
		zap.Any("metadata", logging.Redact(in.Metadata)),
	)
	return a, nil
}

// CreateSystemAccount creates a ledger-owned account explicitly. Most
// system accounts come into existence lazily on first use; this is for
// applications that want them declared ahead of time.
func (e *Engine) CreateSystemAccount(ctx context.Context, in ledger.CreateSystemAccountInput) (*ledger.SystemAccount, error) {
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	var out *ledger.SystemAccount
	err := e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		sa, err := e.ensureSystemAccount(ctx, tx, in.LedgerID, in.Identifier, ledger.NormalizeCurrency(in.Currency))
		if err != nil {
			return err
		}
		out = sa
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount returns the account for holderID without locking.
func (e *Engine) GetAccount(ctx context.Context, ledgerID uuid.UUID, holderID string) (*ledger.Account, error) {
	return e.balances.GetByHolder(ctx, ledgerID, holderID)
}

// GetSystemAccount returns the system account for identifier/currency.
func (e *Engine) GetSystemAccount(ctx context.Context, ledgerID uuid.UUID, identifier, currency string) (*ledger.SystemAccount, error) {
	q := fmt.Sprintf(`
SELECT id, ledger_id, identifier, currency, balance, credit_balance, debit_balance, version, created_at, updated_at
FROM %s
WHERE ledger_id = $1 AND identifier = $2 AND currency = $3
`, e.db.Tables.Table("system_account"))
	var sa ledger.SystemAccount
	err := e.db.Read(ctx).QueryRow(ctx, q, ledgerID, identifier, ledger.NormalizeCurrency(currency)).Scan(
		&sa.ID, &sa.LedgerID, &sa.Identifier, &sa.Currency,
		&sa.Balance, &sa.CreditBalance, &sa.DebitBalance, &sa.Version,
		&sa.CreatedAt, &sa.UpdatedAt,
	)
	if err != nil {
		if errs.IsCode(postgres.MapError(err), errs.CodeNotFound) {
			return nil, errs.Newf(errs.CodeNotFound, "system account %s %s not found", identifier, currency)
		}
		return nil, postgres.MapError(err)
	}
	return &sa, nil
}

// Set clauses for transitionAccount. Each binds $1 = now, then the
// transition's extra arguments in order, then ledger id and account id
// as the last two placeholders.
const (
	freezeSetClause = `
SET status = 'frozen', frozen_at = $1, frozen_by = $2, frozen_reason = $3, updated_at = $1
WHERE ledger_id = $4 AND id = $5`

	unfreezeSetClause = `
SET status = 'active', frozen_at = NULL, frozen_by = NULL, frozen_reason = NULL, updated_at = $1
WHERE ledger_id = $2 AND id = $3`
)

// FreezeAccount blocks all balance mutations on the account until it is
// unfrozen. Inflight holds stay reserved.
func (e *Engine) FreezeAccount(ctx context.Context, ledgerID uuid.UUID, holderID, by, reason string) error {
	return e.transitionAccount(ctx, ledgerID, holderID,
		ledger.AccountActive, ledger.AccountFrozen,
		func(a *ledger.Account) (string, any) {
			return ledger.EventAccountFrozen, ledger.AccountFrozenData{FrozenBy: by, Reason: reason}
		},
		freezeSetClause, by, reason)
}

// UnfreezeAccount returns a frozen account to active.
func (e *Engine) UnfreezeAccount(ctx context.Context, ledgerID uuid.UUID, holderID, by, reason string) error {
	return e.transitionAccount(ctx, ledgerID, holderID,
		ledger.AccountFrozen, ledger.AccountActive,
		func(a *ledger.Account) (string, any) {
			return ledger.EventAccountUnfrozen, ledger.AccountUnfrozenData{UnfrozenBy: by, Reason: reason}
		},
		unfreezeSetClause)
}

func (e *Engine) transitionAccount(ctx context.Context, ledgerID uuid.UUID, holderID string,
	from, to ledger.AccountStatus,
	event func(a *ledger.Account) (string, any),
	setClause string, extra ...any,
) error {
	return e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		id, err := e.resolveAccountID(ctx, tx, ledgerID, holderID)
		if err != nil {
			return err
		}
		a, err := e.balances.Lock(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if a.Status != from {
			return errs.Newf(errs.CodeConflict,
				"account %s has status %s, expected %s", a.ID, a.Status, from)
		}
		args := make([]any, 0, len(extra)+3)
		args = append(args, e.clock.Now())
		args = append(args, extra...)
		args = append(args, ledgerID, a.ID)
		q := fmt.Sprintf(`UPDATE %s %s`, e.db.Tables.Table("account_balance"), setClause)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return postgres.MapError(err)
		}
		a.Status = to
		eventType, data := event(a)
		_, err = e.events.Append(ctx, tx, eventstore.AppendParams{
			LedgerID:      ledgerID,
			AggregateType: ledger.AggregateAccount,
			AggregateID:   a.ID,
			EventType:     eventType,
			Data:          data,
			CorrelationID: uuid.New(),
		})
		return err
	})
}

// CloseAccountInput closes an account permanently. A non-zero balance
// must be swept to SweepToSystem (a system account identifier) or the
// close is rejected. Inflight holds block closing.
type CloseAccountInput struct {
	LedgerID      uuid.UUID
	HolderID      string
	By            string
	Reason        string
	SweepToSystem string
}

func (e *Engine) CloseAccount(ctx context.Context, in CloseAccountInput) error {
	return e.transact(ctx, func(ctx context.Context, tx *postgres.Tx) error {
		id, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.HolderID)
		if err != nil {
			return err
		}
		a, err := e.balances.Lock(ctx, tx, in.LedgerID, id)
		if err != nil {
			return err
		}
		if a.Status == ledger.AccountClosed {
			return errs.Newf(errs.CodeAccountClosed, "account %s is already closed", a.ID)
		}
		if a.PendingDebit != 0 || a.PendingCredit != 0 {
			return errs.Newf(errs.CodeConflict,
				"account %s has inflight holds; void or commit them first", a.ID)
		}

		finalBalance := a.Balance
		var sweepID string
		if a.Balance != 0 {
			if in.SweepToSystem == "" {
				return errs.Newf(errs.CodeConflict,
					"account %s has balance %d; supply a sweep destination", a.ID, a.Balance)
			}
			sweep, err := e.sweepBalance(ctx, tx, a, in.SweepToSystem)
			if err != nil {
				return err
			}
			sweepID = sweep.String()
		}

		now := e.clock.Now()
		q := fmt.Sprintf(`
UPDATE %s
SET status = 'closed', closed_at = $1, closed_by = $2, closed_reason = $3, updated_at = $1
WHERE ledger_id = $4 AND id = $5
`, e.db.Tables.Table("account_balance"))
		if _, err := tx.Exec(ctx, q, now, in.By, in.Reason, in.LedgerID, a.ID); err != nil {
			return postgres.MapError(err)
		}
		_, err = e.events.Append(ctx, tx, eventstore.AppendParams{
			LedgerID:      in.LedgerID,
			AggregateType: ledger.AggregateAccount,
			AggregateID:   a.ID,
			EventType:     ledger.EventAccountClosed,
			Data: ledger.AccountClosedData{
				ClosedBy:           in.By,
				Reason:             in.Reason,
				FinalBalance:       finalBalance,
				SweepTransactionID: sweepID,
			},
			CorrelationID: uuid.New(),
		})
		return err
	})
}

// sweepBalance posts the account's remaining balance to a system
// account as part of closing. A negative balance is swept the other
// way, so the account always lands on zero.
func (e *Engine) sweepBalance(ctx context.Context, tx *postgres.Tx, a *ledger.Account, identifier string) (uuid.UUID, error) {
	sa, err := e.ensureSystemAccount(ctx, tx, a.LedgerID, identifier, a.Currency)
	if err != nil {
		return uuid.Nil, err
	}
	amount := a.Balance
	t := e.newTransaction(uuid.New(), a.LedgerID, ledger.TypeAdjustment,
		abs64(amount), a.Currency,
		fmt.Sprintf("close-sweep-%s", a.ID), "balance sweep on account close",
		uuid.New(), nil, e.clock.Now())
	t.SourceAccountID = &a.ID

	var change *balance.Change
	var legs []postedLeg
	if amount > 0 {
		change, err = e.balances.Apply(ctx, tx, a, balance.Delta{Balance: -amount, Debit: amount})
		if err != nil {
			return uuid.Nil, err
		}
		legs = []postedLeg{
			userLeg(change, ledger.EntryDebit, amount, a.Currency),
			systemLeg(sa, ledger.EntryCredit, amount, a.Currency),
		}
	} else {
		change, err = e.balances.Apply(ctx, tx, a, balance.Delta{Balance: -amount, Credit: -amount})
		if err != nil {
			return uuid.Nil, err
		}
		legs = []postedLeg{
			systemLeg(sa, ledger.EntryDebit, -amount, a.Currency),
			userLeg(change, ledger.EntryCredit, -amount, a.Currency),
		}
	}
	if _, err := e.post(ctx, tx, "closeSweep", t, legs); err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

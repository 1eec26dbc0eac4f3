package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/internal/balance"
	"github.com/ShivamGupta-SM/summa-sub004/internal/fx"
	"github.com/ShivamGupta-SM/summa-sub004/internal/platform/postgres"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
	"github.com/ShivamGupta-SM/summa-sub004/plugin"
)

// Credit posts funds into a user account from the world account.
func (e *Engine) Credit(ctx context.Context, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	return e.move(ctx, "credit", ledger.TypeCredit, in)
}

// Debit posts funds out of a user account into the world account,
// subject to the account's overdraft policy.
func (e *Engine) Debit(ctx context.Context, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	return e.move(ctx, "debit", ledger.TypeDebit, in)
}

// ForceDebit is Debit without the overdraft check, for fees and
// reversals that must post regardless of available balance.
func (e *Engine) ForceDebit(ctx context.Context, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	return e.move(ctx, "forceDebit", ledger.TypeDebit, in)
}

func (e *Engine) move(ctx context.Context, op string, typ ledger.TransactionType, in ledger.MoveInput) (*ledger.TransactionResult, error) {
	if err := e.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	return runOp(e, ctx, op, in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			accountID, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.HolderID)
			if err != nil {
				return nil, err
			}
			world, err := e.ensureSystemAccount(ctx, tx, in.LedgerID, e.cfg.WorldIdentifier, in.Currency)
			if err != nil {
				return nil, err
			}

			t := e.newTransaction(uuid.New(), in.LedgerID, typ, in.Amount, in.Currency,
				in.Reference, in.Description, correlationID, in.Metadata, in.EffectiveDate)
			if typ == ledger.TypeCredit {
				t.DestinationAccountID = &accountID
			} else {
				t.SourceAccountID = &accountID
			}
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: op, Transaction: t,
			}); err != nil {
				return nil, err
			}

			a, err := e.balances.Lock(ctx, tx, in.LedgerID, accountID)
			if err != nil {
				return nil, err
			}
			if err := balance.CheckStatus(a); err != nil {
				return nil, err
			}
			if a.Currency != in.Currency {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"account currency %s does not match %s", a.Currency, in.Currency)
			}

			var legs []postedLeg
			if typ == ledger.TypeCredit {
				change, err := e.balances.Apply(ctx, tx, a, balance.Delta{Balance: in.Amount, Credit: in.Amount})
				if err != nil {
					return nil, err
				}
				legs = []postedLeg{
					systemLeg(world, ledger.EntryDebit, in.Amount, in.Currency),
					userLeg(change, ledger.EntryCredit, in.Amount, in.Currency),
				}
			} else {
				if op != "forceDebit" {
					if err := balance.CheckDebit(a, in.Amount); err != nil {
						return nil, err
					}
				}
				change, err := e.balances.Apply(ctx, tx, a, balance.Delta{Balance: -in.Amount, Debit: in.Amount})
				if err != nil {
					return nil, err
				}
				legs = []postedLeg{
					userLeg(change, ledger.EntryDebit, in.Amount, in.Currency),
					systemLeg(world, ledger.EntryCredit, in.Amount, in.Currency),
				}
			}
			return e.post(ctx, tx, op, t, legs)
		})
}

// Transfer moves funds between two user accounts. When the account
// currencies differ the destination amount is converted through the
// configured rate resolver and recorded with the source amount and
// rate.
func (e *Engine) Transfer(ctx context.Context, in ledger.TransferInput) (*ledger.TransactionResult, error) {
	if err := e.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	if in.SourceHolderID == in.DestHolderID {
		return nil, errs.New(errs.CodeInvalidArgument, "cannot transfer to the same account")
	}
	return runOp(e, ctx, "transfer", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			srcID, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.SourceHolderID)
			if err != nil {
				return nil, err
			}
			dstID, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.DestHolderID)
			if err != nil {
				return nil, err
			}

			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeTransfer, in.Amount, in.Currency,
				in.Reference, in.Description, correlationID, in.Metadata, in.EffectiveDate)
			t.SourceAccountID = &srcID
			t.DestinationAccountID = &dstID
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "transfer", Transaction: t,
			}); err != nil {
				return nil, err
			}

			locked, err := e.balances.LockMany(ctx, tx, in.LedgerID, []uuid.UUID{srcID, dstID})
			if err != nil {
				return nil, err
			}
			src, dst := locked[srcID], locked[dstID]
			if err := balance.CheckStatus(src); err != nil {
				return nil, err
			}
			if err := balance.CheckStatus(dst); err != nil {
				return nil, err
			}
			if src.Currency != in.Currency {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"source currency %s does not match %s", src.Currency, in.Currency)
			}
			if err := balance.CheckDebit(src, in.Amount); err != nil {
				return nil, err
			}

			destAmount := in.Amount
			var originalAmount *int64
			var originalCurrency string
			var exchangeRate *int64
			if dst.Currency != src.Currency {
				if e.fx == nil {
					return nil, errs.Newf(errs.CodeInvalidArgument,
						"no exchange rate resolver configured for %s/%s", src.Currency, dst.Currency)
				}
				rate, err := e.fx.Resolve(ctx, src.Currency, dst.Currency)
				if err != nil {
					return nil, err
				}
				destAmount, err = fx.Convert(in.Amount, rate)
				if err != nil {
					return nil, err
				}
				if destAmount <= 0 {
					return nil, errs.New(errs.CodeInvalidArgument, "converted amount rounds to zero")
				}
				oa := in.Amount
				originalAmount = &oa
				originalCurrency = src.Currency
				exchangeRate = &rate
			}

			srcChange, err := e.balances.Apply(ctx, tx, src, balance.Delta{Balance: -in.Amount, Debit: in.Amount})
			if err != nil {
				return nil, err
			}
			dstChange, err := e.balances.Apply(ctx, tx, dst, balance.Delta{Balance: destAmount, Credit: destAmount})
			if err != nil {
				return nil, err
			}

			credit := userLeg(dstChange, ledger.EntryCredit, destAmount, dst.Currency)
			credit.originalAmount = originalAmount
			credit.originalCurrency = originalCurrency
			credit.exchangeRate = exchangeRate
			return e.post(ctx, tx, "transfer", t, []postedLeg{
				userLeg(srcChange, ledger.EntryDebit, in.Amount, src.Currency),
				credit,
			})
		})
}

// MultiTransfer fans one debit out to several destinations atomically.
// The source is locked first, then destinations in ascending id order.
func (e *Engine) MultiTransfer(ctx context.Context, in ledger.MultiTransferInput) (*ledger.TransactionResult, error) {
	if err := e.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	explicit := make([]*int64, len(in.Destinations))
	for i, d := range in.Destinations {
		if d.HolderID == in.SourceHolderID {
			return nil, errs.New(errs.CodeInvalidArgument, "cannot transfer to the source account")
		}
		explicit[i] = d.Amount
	}
	amounts, err := resolveDestinationAmounts(in.Amount, explicit)
	if err != nil {
		return nil, err
	}
	return runOp(e, ctx, "multiTransfer", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			srcID, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.SourceHolderID)
			if err != nil {
				return nil, err
			}
			destIDs := make([]uuid.UUID, len(in.Destinations))
			for i, d := range in.Destinations {
				id, err := e.resolveAccountID(ctx, tx, in.LedgerID, d.HolderID)
				if err != nil {
					return nil, err
				}
				destIDs[i] = id
			}

			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeTransfer, in.Amount, in.Currency,
				in.Reference, in.Description, correlationID, in.Metadata, e.clock.Now())
			t.SourceAccountID = &srcID
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "multiTransfer", Transaction: t,
			}); err != nil {
				return nil, err
			}

			src, err := e.balances.Lock(ctx, tx, in.LedgerID, srcID)
			if err != nil {
				return nil, err
			}
			dests, err := e.balances.LockMany(ctx, tx, in.LedgerID, destIDs)
			if err != nil {
				return nil, err
			}
			if err := balance.CheckStatus(src); err != nil {
				return nil, err
			}
			if src.Currency != in.Currency {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"source currency %s does not match %s", src.Currency, in.Currency)
			}
			if err := balance.CheckDebit(src, in.Amount); err != nil {
				return nil, err
			}
			for _, id := range destIDs {
				d := dests[id]
				if err := balance.CheckStatus(d); err != nil {
					return nil, err
				}
				if d.Currency != in.Currency {
					return nil, errs.Newf(errs.CodeInvalidArgument,
						"destination currency %s does not match %s", d.Currency, in.Currency)
				}
			}

			srcChange, err := e.balances.Apply(ctx, tx, src, balance.Delta{Balance: -in.Amount, Debit: in.Amount})
			if err != nil {
				return nil, err
			}
			legs := []postedLeg{userLeg(srcChange, ledger.EntryDebit, in.Amount, in.Currency)}
			for i, id := range destIDs {
				change, err := e.balances.Apply(ctx, tx, dests[id], balance.Delta{Balance: amounts[i], Credit: amounts[i]})
				if err != nil {
					return nil, err
				}
				legs = append(legs, userLeg(change, ledger.EntryCredit, amounts[i], in.Currency))
			}
			return e.post(ctx, tx, "multiTransfer", t, legs)
		})
}

// Journal posts an arbitrary balanced set of legs across user and
// system accounts. Debits and credits must balance within each
// currency.
func (e *Engine) Journal(ctx context.Context, in ledger.JournalInput) (*ledger.TransactionResult, error) {
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	if err := checkJournalLegs(in.Legs); err != nil {
		return nil, err
	}
	for _, l := range in.Legs {
		if err := e.validateAmount(l.Amount); err != nil {
			return nil, err
		}
	}
	return runOp(e, ctx, "journal", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			accountIDs := make([]uuid.UUID, 0, len(in.Legs))
			legAccount := make([]uuid.UUID, len(in.Legs))
			for i, l := range in.Legs {
				if l.HolderID == "" {
					continue
				}
				id, err := e.resolveAccountID(ctx, tx, in.LedgerID, l.HolderID)
				if err != nil {
					return nil, err
				}
				legAccount[i] = id
				accountIDs = append(accountIDs, id)
			}

			var total int64
			for _, l := range in.Legs {
				if l.Direction == ledger.EntryDebit && l.Currency == in.Legs[0].Currency {
					total += l.Amount
				}
			}
			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeJournal, total, in.Legs[0].Currency,
				in.Reference, in.Description, correlationID, in.Metadata, e.clock.Now())
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "journal", Transaction: t,
			}); err != nil {
				return nil, err
			}

			locked, err := e.balances.LockMany(ctx, tx, in.LedgerID, accountIDs)
			if err != nil {
				return nil, err
			}
			for i, l := range in.Legs {
				if l.HolderID == "" {
					continue
				}
				a := locked[legAccount[i]]
				if err := balance.CheckStatus(a); err != nil {
					return nil, err
				}
				if a.Currency != l.Currency {
					return nil, errs.Newf(errs.CodeInvalidArgument,
						"account %s currency %s does not match leg currency %s", l.HolderID, a.Currency, l.Currency)
				}
				if l.Direction == ledger.EntryDebit {
					if err := balance.CheckDebit(a, l.Amount); err != nil {
						return nil, err
					}
				}
			}

			legs := make([]postedLeg, 0, len(in.Legs))
			for i, l := range in.Legs {
				if l.HolderID != "" {
					a := locked[legAccount[i]]
					var d balance.Delta
					if l.Direction == ledger.EntryCredit {
						d = balance.Delta{Balance: l.Amount, Credit: l.Amount}
					} else {
						d = balance.Delta{Balance: -l.Amount, Debit: l.Amount}
					}
					change, err := e.balances.Apply(ctx, tx, a, d)
					if err != nil {
						return nil, err
					}
					legs = append(legs, userLeg(change, l.Direction, l.Amount, l.Currency))
					continue
				}
				sa, err := e.ensureSystemAccount(ctx, tx, in.LedgerID, l.SystemIdentifier, l.Currency)
				if err != nil {
					return nil, err
				}
				legs = append(legs, systemLeg(sa, l.Direction, l.Amount, l.Currency))
			}
			return e.post(ctx, tx, "journal", t, legs)
		})
}

// Adjust posts an administrative balance correction against the
// suspense account. Adjustments bypass the overdraft policy: they fix
// recorded state rather than spend from it.
func (e *Engine) Adjust(ctx context.Context, in ledger.AdjustInput) (*ledger.TransactionResult, error) {
	if err := e.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validateCurrency(in.Currency); err != nil {
		return nil, err
	}
	if err := validateReference(in.Reference); err != nil {
		return nil, err
	}
	if in.Type != ledger.AdjustmentIncrease && in.Type != ledger.AdjustmentDecrease {
		return nil, errs.Newf(errs.CodeInvalidArgument, "unknown adjustment type %q", in.Type)
	}
	return runOp(e, ctx, "adjust", in.LedgerID, in.IdempotencyKey, in.Reference,
		func(ctx context.Context, tx *postgres.Tx, correlationID uuid.UUID) (*ledger.TransactionResult, error) {
			accountID, err := e.resolveAccountID(ctx, tx, in.LedgerID, in.HolderID)
			if err != nil {
				return nil, err
			}
			suspense, err := e.ensureSystemAccount(ctx, tx, in.LedgerID, e.cfg.SuspenseIdentifier, in.Currency)
			if err != nil {
				return nil, err
			}

			t := e.newTransaction(uuid.New(), in.LedgerID, ledger.TypeAdjustment, in.Amount, in.Currency,
				in.Reference, in.Description, correlationID, nil, e.clock.Now())
			if in.Type == ledger.AdjustmentIncrease {
				t.DestinationAccountID = &accountID
			} else {
				t.SourceAccountID = &accountID
			}
			if err := e.hooks.BeforeTransaction(ctx, &plugin.TransactionContext{
				LedgerID: in.LedgerID, Operation: "adjust", Transaction: t,
			}); err != nil {
				return nil, err
			}

			a, err := e.balances.Lock(ctx, tx, in.LedgerID, accountID)
			if err != nil {
				return nil, err
			}
			if err := balance.CheckStatus(a); err != nil {
				return nil, err
			}
			if a.Currency != in.Currency {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"account currency %s does not match %s", a.Currency, in.Currency)
			}

			var legs []postedLeg
			if in.Type == ledger.AdjustmentIncrease {
				change, err := e.balances.Apply(ctx, tx, a, balance.Delta{Balance: in.Amount, Credit: in.Amount})
				if err != nil {
					return nil, err
				}
				legs = []postedLeg{
					systemLeg(suspense, ledger.EntryDebit, in.Amount, in.Currency),
					userLeg(change, ledger.EntryCredit, in.Amount, in.Currency),
				}
			} else {
				change, err := e.balances.Apply(ctx, tx, a, balance.Delta{Balance: -in.Amount, Debit: in.Amount})
				if err != nil {
					return nil, err
				}
				legs = []postedLeg{
					userLeg(change, ledger.EntryDebit, in.Amount, in.Currency),
					systemLeg(suspense, ledger.EntryCredit, in.Amount, in.Currency),
				}
			}
			return e.post(ctx, tx, "adjust", t, legs)
		})
}

package engine

import (
	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

func (e *Engine) validateAmount(amount int64) error {
	if amount <= 0 {
		return errs.New(errs.CodeInvalidArgument, "amount must be positive")
	}
	if amount > e.cfg.MaxTransactionAmount {
		return errs.Newf(errs.CodeInvalidArgument,
			"amount %d exceeds maximum transaction amount %d", amount, e.cfg.MaxTransactionAmount)
	}
	return nil
}

func validateReference(reference string) error {
	if reference == "" {
		return errs.New(errs.CodeInvalidArgument, "reference must not be empty")
	}
	return nil
}

func validateCurrency(code string) error {
	if !ledger.ValidCurrency(code) {
		return errs.Newf(errs.CodeInvalidArgument, "unknown currency %q", code)
	}
	return nil
}

// resolveDestinationAmounts splits total across fan-out destinations.
// Explicit amounts must be positive and sum to at most total; at most
// one destination may omit its amount and receives the remainder. With
// no remainder destination the explicit amounts must sum exactly.
func resolveDestinationAmounts(total int64, explicit []*int64) ([]int64, error) {
	if len(explicit) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "at least one destination is required")
	}
	out := make([]int64, len(explicit))
	remainderAt := -1
	var sum int64
	for i, a := range explicit {
		if a == nil {
			if remainderAt >= 0 {
				return nil, errs.New(errs.CodeInvalidArgument, "at most one destination may omit its amount")
			}
			remainderAt = i
			continue
		}
		if *a <= 0 {
			return nil, errs.New(errs.CodeInvalidArgument, "destination amounts must be positive")
		}
		sum += *a
		out[i] = *a
	}
	if sum > total {
		return nil, errs.Newf(errs.CodeInvalidArgument,
			"destination amounts %d exceed total %d", sum, total)
	}
	if remainderAt >= 0 {
		out[remainderAt] = total - sum
	} else if sum != total {
		return nil, errs.Newf(errs.CodeInvalidArgument,
			"destination amounts %d do not sum to total %d", sum, total)
	}
	return out, nil
}

// checkJournalLegs enforces the double-entry invariant per currency:
// within each currency, debits and credits must balance exactly.
func checkJournalLegs(legs []ledger.JournalLeg) error {
	if len(legs) < 2 {
		return errs.New(errs.CodeInvalidArgument, "journal requires at least two legs")
	}
	net := make(map[string]int64)
	for i, l := range legs {
		if (l.HolderID == "") == (l.SystemIdentifier == "") {
			return errs.Newf(errs.CodeInvalidArgument,
				"journal leg %d must target exactly one of holder or system account", i)
		}
		if l.Amount <= 0 {
			return errs.Newf(errs.CodeInvalidArgument, "journal leg %d amount must be positive", i)
		}
		if err := validateCurrency(l.Currency); err != nil {
			return err
		}
		switch l.Direction {
		case ledger.EntryDebit:
			net[l.Currency] -= l.Amount
		case ledger.EntryCredit:
			net[l.Currency] += l.Amount
		default:
			return errs.Newf(errs.CodeInvalidArgument, "journal leg %d has unknown direction %q", i, l.Direction)
		}
	}
	for ccy, n := range net {
		if n != 0 {
			return errs.Newf(errs.CodeInvalidArgument,
				"journal does not balance for %s: net %d", ccy, n)
		}
	}
	return nil
}

package balance

import (
	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

// CheckStatus rejects any balance mutation on a non-active account.
func CheckStatus(a *ledger.Account) error {
	switch a.Status {
	case ledger.AccountActive:
		return nil
	case ledger.AccountFrozen:
		return errs.Newf(errs.CodeAccountFrozen, "account %s is frozen", a.ID)
	case ledger.AccountClosed:
		return errs.Newf(errs.CodeAccountClosed, "account %s is closed", a.ID)
	default:
		return errs.Newf(errs.CodeInternal, "account %s has unknown status %q", a.ID, a.Status)
	}
}

// CheckDebit applies the overdraft policy to a prospective debit or
// hold of amount against the account's available balance.
func CheckDebit(a *ledger.Account, amount int64) error {
	available := a.Available()
	switch {
	case !a.AllowOverdraft:
		if available < amount {
			return errs.Newf(errs.CodeInsufficientBalance,
				"available balance %d is less than %d", available, amount)
		}
	case a.OverdraftLimit > 0:
		if available-amount < -a.OverdraftLimit {
			return errs.Newf(errs.CodeInsufficientBalance,
				"debit of %d would exceed overdraft limit %d", amount, a.OverdraftLimit)
		}
	default:
		// Overdraft allowed with zero limit means unlimited.
	}
	return nil
}

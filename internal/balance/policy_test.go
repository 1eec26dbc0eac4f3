package balance

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

func TestCheckStatus(t *testing.T) {
	cases := []struct {
		status ledger.AccountStatus
		want   errs.Code
	}{
		{ledger.AccountActive, ""},
		{ledger.AccountFrozen, errs.CodeAccountFrozen},
		{ledger.AccountClosed, errs.CodeAccountClosed},
	}
	for _, tc := range cases {
		err := CheckStatus(&ledger.Account{ID: uuid.New(), Status: tc.status})
		if tc.want == "" {
			if err != nil {
				t.Fatalf("CheckStatus(%s) = %v, want nil", tc.status, err)
			}
			continue
		}
		if !errs.IsCode(err, tc.want) {
			t.Fatalf("CheckStatus(%s) = %v, want code %s", tc.status, err, tc.want)
		}
	}
}

func TestCheckDebitOverdraftPolicy(t *testing.T) {
	cases := []struct {
		name           string
		balance        int64
		pendingDebit   int64
		allowOverdraft bool
		overdraftLimit int64
		amount         int64
		wantErr        bool
	}{
		{"covered", 10_000, 0, false, 0, 10_000, false},
		{"uncovered", 10_000, 0, false, 0, 10_001, true},
		{"pending reduces available", 10_000, 5_000, false, 0, 5_001, true},
		{"within limit", 1_000, 0, true, 5_000, 5_500, false},
		{"at limit", 1_000, 0, true, 5_000, 6_000, false},
		{"past limit", 1_000, 0, true, 5_000, 6_001, true},
		{"unlimited overdraft", -50_000, 0, true, 0, 1_000_000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &ledger.Account{
				Balance:        tc.balance,
				PendingDebit:   tc.pendingDebit,
				AllowOverdraft: tc.allowOverdraft,
				OverdraftLimit: tc.overdraftLimit,
			}
			err := CheckDebit(a, tc.amount)
			if tc.wantErr && !errs.IsCode(err, errs.CodeInsufficientBalance) {
				t.Fatalf("CheckDebit = %v, want INSUFFICIENT_BALANCE", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("CheckDebit = %v, want nil", err)
			}
		})
	}
}

func TestNewRejectsOptimisticMode(t *testing.T) {
	if _, err := New(nil, LockOptimistic, nil, nil); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("New(optimistic) = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := New(nil, "banana", nil, nil); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("New(banana) = %v, want INVALID_ARGUMENT", err)
	}
}

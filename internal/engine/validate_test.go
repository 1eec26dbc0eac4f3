package engine

import (
	"testing"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

func ptr(v int64) *int64 { return &v }

func TestResolveDestinationAmounts(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		explicit []*int64
		want     []int64
		wantErr  errs.Code
	}{
		{"single remainder", 10_000, []*int64{nil}, []int64{10_000}, ""},
		{"exact split", 10_000, []*int64{ptr(6_000), ptr(4_000)}, []int64{6_000, 4_000}, ""},
		{"remainder takes the rest", 10_000, []*int64{ptr(2_500), nil, ptr(500)}, []int64{2_500, 7_000, 500}, ""},
		{"remainder may be zero", 1_000, []*int64{ptr(1_000), nil}, []int64{1_000, 0}, ""},
		{"no destinations", 10_000, nil, nil, errs.CodeInvalidArgument},
		{"two remainders", 10_000, []*int64{nil, nil}, nil, errs.CodeInvalidArgument},
		{"negative explicit", 10_000, []*int64{ptr(-5)}, nil, errs.CodeInvalidArgument},
		{"zero explicit", 10_000, []*int64{ptr(0), nil}, nil, errs.CodeInvalidArgument},
		{"over total", 10_000, []*int64{ptr(9_000), ptr(2_000)}, nil, errs.CodeInvalidArgument},
		{"under total without remainder", 10_000, []*int64{ptr(4_000), ptr(5_000)}, nil, errs.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveDestinationAmounts(tc.total, tc.explicit)
			if tc.wantErr != "" {
				if !errs.IsCode(err, tc.wantErr) {
					t.Fatalf("err = %v, want code %s", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveDestinationAmounts: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("got[%d] = %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestCheckJournalLegs(t *testing.T) {
	leg := func(holder, system string, dir ledger.EntryType, amount int64, ccy string) ledger.JournalLeg {
		return ledger.JournalLeg{HolderID: holder, SystemIdentifier: system, Direction: dir, Amount: amount, Currency: ccy}
	}

	cases := []struct {
		name    string
		legs    []ledger.JournalLeg
		wantErr bool
	}{
		{
			"balanced pair",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryDebit, 1_000, "USD"),
				leg("bob", "", ledger.EntryCredit, 1_000, "USD"),
			},
			false,
		},
		{
			"balanced across currencies independently",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryDebit, 1_000, "USD"),
				leg("", "@world", ledger.EntryCredit, 1_000, "USD"),
				leg("carol", "", ledger.EntryDebit, 500, "EUR"),
				leg("dave", "", ledger.EntryCredit, 500, "EUR"),
			},
			false,
		},
		{
			"one leg",
			[]ledger.JournalLeg{leg("alice", "", ledger.EntryDebit, 1_000, "USD")},
			true,
		},
		{
			"unbalanced",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryDebit, 1_000, "USD"),
				leg("bob", "", ledger.EntryCredit, 999, "USD"),
			},
			true,
		},
		{
			"balanced in total but not per currency",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryDebit, 1_000, "USD"),
				leg("bob", "", ledger.EntryCredit, 1_000, "EUR"),
			},
			true,
		},
		{
			"both holder and system set",
			[]ledger.JournalLeg{
				leg("alice", "@world", ledger.EntryDebit, 1_000, "USD"),
				leg("bob", "", ledger.EntryCredit, 1_000, "USD"),
			},
			true,
		},
		{
			"neither holder nor system set",
			[]ledger.JournalLeg{
				leg("", "", ledger.EntryDebit, 1_000, "USD"),
				leg("bob", "", ledger.EntryCredit, 1_000, "USD"),
			},
			true,
		},
		{
			"zero amount",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryDebit, 0, "USD"),
				leg("bob", "", ledger.EntryCredit, 0, "USD"),
			},
			true,
		},
		{
			"unknown currency",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryDebit, 1_000, "ZZZ"),
				leg("bob", "", ledger.EntryCredit, 1_000, "ZZZ"),
			},
			true,
		},
		{
			"unknown direction",
			[]ledger.JournalLeg{
				leg("alice", "", ledger.EntryType("sideways"), 1_000, "USD"),
				leg("bob", "", ledger.EntryCredit, 1_000, "USD"),
			},
			true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkJournalLegs(tc.legs)
			if tc.wantErr && !errs.IsCode(err, errs.CodeInvalidArgument) {
				t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("checkJournalLegs: %v", err)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	e := &Engine{cfg: Config{MaxTransactionAmount: 1_000_000}}
	if err := e.validateAmount(1_000_000); err != nil {
		t.Fatalf("at max = %v, want nil", err)
	}
	if err := e.validateAmount(1_000_001); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("over max = %v, want INVALID_ARGUMENT", err)
	}
	for _, amount := range []int64{0, -1} {
		if err := e.validateAmount(amount); !errs.IsCode(err, errs.CodeInvalidArgument) {
			t.Fatalf("validateAmount(%d) = %v, want INVALID_ARGUMENT", amount, err)
		}
	}
}

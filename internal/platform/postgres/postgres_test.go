package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

func TestResolverQualifiesTables(t *testing.T) {
	r, err := NewResolver("")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if got := r.Table("account_balance"); got != "summa.account_balance" {
		t.Fatalf("Table = %q", got)
	}

	public, err := NewResolver("public")
	if err != nil {
		t.Fatalf("NewResolver(public): %v", err)
	}
	if got := public.Table("hold"); got != "hold" {
		t.Fatalf("public Table = %q", got)
	}
}

func TestResolverRejectsInvalidSchema(t *testing.T) {
	for _, schema := range []string{"Summa", "1bad", "a b", `x";DROP`} {
		if _, err := NewResolver(schema); !errs.IsCode(err, errs.CodeInvalidArgument) {
			t.Fatalf("NewResolver(%q) = %v, want INVALID_ARGUMENT", schema, err)
		}
	}
}

func TestStreamLockKeyIsStablePerStream(t *testing.T) {
	ledgerID := uuid.MustParse("7b0d8c3e-0f3a-4f8e-9a49-9a2e6f6d2c11")
	accountA := uuid.MustParse("4f0f33ac-4c5b-44b4-8e0e-9b8f3c7e8a01")
	accountB := uuid.MustParse("4f0f33ac-4c5b-44b4-8e0e-9b8f3c7e8a02")

	k1 := StreamLockKey(ledgerID, "account", accountA)
	k2 := StreamLockKey(ledgerID, "account", accountA)
	if k1 != k2 {
		t.Fatalf("key is not deterministic: %d vs %d", k1, k2)
	}
	if StreamLockKey(ledgerID, "account", accountB) == k1 {
		t.Fatalf("different aggregates collided")
	}
	if StreamLockKey(ledgerID, "hold", accountA) == k1 {
		t.Fatalf("different aggregate types collided")
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errs.Code
	}{
		{"nil passthrough", nil, ""},
		{"no rows", pgx.ErrNoRows, errs.CodeNotFound},
		{"deadline", context.DeadlineExceeded, errs.CodeLockTimeout},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errs.CodeConflict},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, errs.CodeLockTimeout},
		{"query canceled", &pgconn.PgError{Code: "57014"}, errs.CodeLockTimeout},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, errs.CodeConcurrencyConflict},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, errs.CodeConcurrencyConflict},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, errs.CodeInternal},
		{"plain error", errors.New("boom"), errs.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MapError(tc.err)
			if tc.want == "" {
				if got != nil {
					t.Fatalf("MapError(nil) = %v", got)
				}
				return
			}
			if !errs.IsCode(got, tc.want) {
				t.Fatalf("MapError = %v, want code %s", got, tc.want)
			}
		})
	}
}

func TestIsLockNotAvailableSeesThroughMapError(t *testing.T) {
	fastFail := MapError(&pgconn.PgError{Code: "55P03"})
	if !IsLockNotAvailable(fastFail) {
		t.Fatalf("NOWAIT fast-fail not detected through wrapping: %v", fastFail)
	}
	for _, err := range []error{
		MapError(&pgconn.PgError{Code: "57014"}),
		MapError(context.DeadlineExceeded),
		errs.New(errs.CodeLockTimeout, "tagged without a pg cause"),
		nil,
	} {
		if IsLockNotAvailable(err) {
			t.Fatalf("IsLockNotAvailable(%v) = true, want false", err)
		}
	}
}

func TestMapErrorKeepsTaggedErrors(t *testing.T) {
	tagged := errs.New(errs.CodeInsufficientBalance, "no funds")
	got := MapError(tagged)
	if !errs.IsCode(got, errs.CodeInsufficientBalance) {
		t.Fatalf("tagged error lost its code: %v", got)
	}
	if !errors.Is(got, tagged) {
		t.Fatalf("tagged error was replaced: %v", got)
	}
}

package fx

import (
	"context"
	"testing"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		rate   int64
		want   int64
	}{
		{"identity", 2_500, RateScale, 2_500},
		{"usd to eur", 10_000, 920_000, 9_200},
		{"rounds half up", 1, 500_000, 1},      // 0.5 -> 1
		{"rounds down below half", 1, 499_999, 0},
		{"negative amount rounds away from zero", -1, 500_000, -1},
		{"jpy style upscale", 100, 147_250_000, 14_725},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convert(tc.amount, tc.rate)
			if err != nil {
				t.Fatalf("Convert(%d, %d) = %v", tc.amount, tc.rate, err)
			}
			if got != tc.want {
				t.Fatalf("Convert(%d, %d) = %d, want %d", tc.amount, tc.rate, got, tc.want)
			}
		})
	}
}

func TestConvertRejectsBadRates(t *testing.T) {
	for _, rate := range []int64{0, -1} {
		if _, err := Convert(1_000, rate); !errs.IsCode(err, errs.CodeInvalidArgument) {
			t.Fatalf("Convert(rate=%d) = %v, want INVALID_ARGUMENT", rate, err)
		}
	}
}

func TestConvertOverflowGuard(t *testing.T) {
	// ~9.2e18 * 1000 would overflow int64 minor units.
	if _, err := Convert(1<<62, 1_000*RateScale); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("overflowing conversion = %v, want INVALID_ARGUMENT", err)
	}
}

func TestFixedResolver(t *testing.T) {
	r := FixedResolver{"USD/EUR": 920_000, "USD/BAD": -5}

	rate, err := r.Resolve(context.Background(), "usd", "eur")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rate != 920_000 {
		t.Fatalf("rate = %d, want 920000", rate)
	}

	if _, err := r.Resolve(context.Background(), "EUR", "USD"); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("missing pair = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := r.Resolve(context.Background(), "USD", "BAD"); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("non-positive rate = %v, want INVALID_ARGUMENT", err)
	}
}

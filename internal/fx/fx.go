// Package fx converts amounts between currencies using pluggable rate
// resolution. Rates are integers scaled by 1e6; precision loss on
// extreme pairs is a documented limitation.
package fx

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

// RateScale is the fixed-point scale of exchange rates: a stored rate r
// means r/1e6 destination units per source unit.
const RateScale = 1_000_000

// Resolver supplies the exchange rate between two currencies. Rate
// sourcing is application territory; the engine only consumes rates.
type Resolver interface {
	Resolve(ctx context.Context, from, to string) (int64, error)
}

// FixedResolver resolves from a static table keyed "FROM/TO". Useful
// for tests and closed currency sets.
type FixedResolver map[string]int64

func (r FixedResolver) Resolve(_ context.Context, from, to string) (int64, error) {
	key := strings.ToUpper(from) + "/" + strings.ToUpper(to)
	rate, ok := r[key]
	if !ok {
		return 0, errs.Newf(errs.CodeInvalidArgument, "no exchange rate for %s", key)
	}
	if rate <= 0 {
		return 0, errs.Newf(errs.CodeInvalidArgument, "non-positive exchange rate for %s", key)
	}
	return rate, nil
}

// Convert applies a scaled rate to an amount in source minor units,
// rounding half away from zero.
func Convert(amount, rate int64) (int64, error) {
	if rate <= 0 {
		return 0, errs.New(errs.CodeInvalidArgument, "exchange rate must be positive")
	}
	converted := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(rate)).
		Div(decimal.NewFromInt(RateScale)).
		Round(0)
	if !converted.IsInteger() || converted.BigInt().BitLen() > 62 {
		return 0, errs.New(errs.CodeInvalidArgument, "converted amount overflows 64-bit minor units")
	}
	return converted.IntPart(), nil
}

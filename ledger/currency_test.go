package ledger

import "testing"

func TestCurrencyExponent(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{"USD", 2},
		{"usd", 2},
		{"JPY", 0},
		{"BHD", 3},
		{"EUR", 2},
	}
	for _, tc := range cases {
		got, ok := CurrencyExponent(tc.code)
		if !ok {
			t.Fatalf("CurrencyExponent(%q) unknown", tc.code)
		}
		if got != tc.want {
			t.Fatalf("CurrencyExponent(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestValidCurrencyRejectsUnknown(t *testing.T) {
	for _, code := range []string{"", "US", "USDT", "XXX"} {
		if ValidCurrency(code) {
			t.Fatalf("ValidCurrency(%q) = true, want false", code)
		}
	}
}

func TestAvailableSubtractsPendingDebit(t *testing.T) {
	a := &Account{Balance: 10_000, PendingDebit: 2_500}
	if got := a.Available(); got != 7_500 {
		t.Fatalf("Available = %d, want 7500", got)
	}
}

func TestValidSystemIdentifier(t *testing.T) {
	cases := map[string]bool{
		"@world":    true,
		"@suspense": true,
		"@":         false,
		"world":     false,
		"":          false,
	}
	for id, want := range cases {
		if got := ValidSystemIdentifier(id); got != want {
			t.Fatalf("ValidSystemIdentifier(%q) = %v, want %v", id, got, want)
		}
	}
}

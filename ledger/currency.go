package ledger

import "strings"

// minorUnits maps ISO 4217 codes to the exponent of their minor unit.
// Amounts everywhere are integers in these minor units; the table exists
// for input validation and display, never for arithmetic.
var minorUnits = map[string]int{
	"AED": 2, "AUD": 2, "BHD": 3, "BRL": 2, "CAD": 2, "CHF": 2,
	"CLP": 0, "CNY": 2, "COP": 2, "CZK": 2, "DKK": 2, "EGP": 2,
	"EUR": 2, "GBP": 2, "HKD": 2, "HUF": 2, "IDR": 2, "ILS": 2,
	"INR": 2, "JOD": 3, "JPY": 0, "KES": 2, "KRW": 0, "KWD": 3,
	"MXN": 2, "MYR": 2, "NGN": 2, "NOK": 2, "NZD": 2, "OMR": 3,
	"PHP": 2, "PKR": 2, "PLN": 2, "QAR": 2, "RON": 2, "SAR": 2,
	"SEK": 2, "SGD": 2, "THB": 2, "TND": 3, "TRY": 2, "TWD": 2,
	"USD": 2, "VND": 0, "ZAR": 2,
}

// ValidCurrency reports whether code is a recognized ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, ok := minorUnits[strings.ToUpper(code)]
	return ok
}

// CurrencyExponent returns the minor-unit exponent for code and whether
// the currency is recognized.
func CurrencyExponent(code string) (int, bool) {
	n, ok := minorUnits[strings.ToUpper(code)]
	return n, ok
}

// NormalizeCurrency upper-cases code for storage and comparison.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package domain

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// NormalizeCurrency upper-cases and trims an ISO 4217 code and checks that
// it is known.
func NormalizeCurrency(code string) (string, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if norm == "" {
		return "", fmt.Errorf("currency is required")
	}
	if money.GetCurrency(norm) == nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return norm, nil
}

// MinorUnits returns the number of decimal places used by the currency.
// Unknown codes fall back to 2.
func MinorUnits(code string) int32 {
	cur := money.GetCurrency(code)
	if cur == nil {
		return 2
	}
	return int32(cur.Fraction)
}

// RoundAmount rounds d to the currency's minor unit.
func RoundAmount(d decimal.Decimal, code string) decimal.Decimal {
	return d.Round(MinorUnits(code))
}

// FitsCurrency reports whether d has no more decimal places than the
// currency allows.
func FitsCurrency(d decimal.Decimal, code string) bool {
	return RoundAmount(d, code).Equal(d)
}

// FormatAmount renders d with the currency symbol, e.g. "$1,234.50".
func FormatAmount(d decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return d.StringFixed(2) + " " + code
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

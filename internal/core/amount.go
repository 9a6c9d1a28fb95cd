// Package core holds the ledger domain model and amount handling.
//
// Monetary values are exact decimals throughout; float64 arithmetic on
// currency amounts is deliberately absent from this codebase because cent
// drift accumulates across sums and percentage calculations.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Returns ErrInvalidAmount for anything that is not
// a plain decimal number.
//
// Examples:
//
//	ParseAmount("-45.50") -> -45.5
//	ParseAmount("12,34")  -> 12.34
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with exactly two fraction digits, the
// form used by the CSV export and the backup snapshot.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Abs returns the absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}

// Package core provides the budget domain model, its invariants and the
// derived views computed over it.
//
// This file contains amount parsing for user input.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed decimal string to a positive amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. Signs,
// empty input, non-numeric input and zero are rejected with ErrInvalidAmount,
// matching IsValidAmount.
//
// Examples:
//
//	ParseAmount("15000")   -> 15000, nil
//	ParseAmount("12,50")   -> 12.5, nil
//	ParseAmount("-1")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		// decimal accepts exponents; typed amounts never carry one.
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	v := d.InexactFloat64()
	if !IsValidAmount(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// sum adds amounts with decimal precision so that 0.1+0.2 totals display as 0.3.
func sum(values ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total
}

// Package core provides the paylog domain model.
//
// This file contains amount parsing and the conversion between decimal
// amounts and the integer minor units used for storage and SQL aggregation.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits every amount carries.
const AmountScale = 2

var (
	ErrInvalidAmount     = errors.New("Invalid amount.")
	ErrAmountNotPositive = errors.New("Amount must be greater than zero.")
	ErrAmountPrecision   = errors.New("Ensure that there are no more than 2 decimal places.")
	ErrAmountTooLarge    = errors.New("Ensure that there are no more than 10 digits before the decimal point.")
)

// maxAmount is exclusive: ten integer digits plus two fractional ones.
var maxAmount = decimal.New(1, 10)

// ParseAmount parses a positive decimal amount with at most two fractional
// digits. Both dot (12.34) and comma (12,34) separators are accepted.
//
// Examples:
//
//	ParseAmount("0.01")  -> 0.01, nil
//	ParseAmount("12,5")  -> 12.50, nil
//	ParseAmount("0.00")  -> ErrAmountNotPositive
//	ParseAmount("1.005") -> ErrAmountPrecision
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return decimal.Zero, ErrAmountPrecision
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return d.Round(AmountScale), nil
}

// ToMinor converts an amount to integer minor units (cents).
func ToMinor(d decimal.Decimal) int64 {
	return d.Shift(AmountScale).Round(0).IntPart()
}

// FromMinor converts integer minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -AmountScale)
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// Package money converts between user-facing decimal amounts and the int64 minor units
// (paise for INR) stored by the ledger and sent to the payment processor.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MinorExponent is the number of fractional digits of the ledger currency.
const MinorExponent = 2

var (
	// ErrMalformed indicates the amount is not a decimal number.
	ErrMalformed = errors.New("malformed amount")
	// ErrPrecision indicates the amount has more fractional digits than the currency allows.
	ErrPrecision = errors.New("amount has too many decimal places")
	// ErrOverflow indicates the amount does not fit the ledger representation.
	ErrOverflow = errors.New("amount out of range")
)

var minorFactor = decimal.New(1, MinorExponent)

// ParseMinor converts a major-unit string such as "500.25" into minor units (50025).
// Sign is preserved; callers decide whether non-positive amounts are acceptable.
func ParseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a major-unit decimal into minor units.
func FromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(minorFactor)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrPrecision
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrOverflow
	}
	return scaled.IntPart(), nil
}

// Format renders minor units as a fixed-point major-unit string, e.g. 50025 -> "500.25".
func Format(minor int64) string {
	return decimal.New(minor, -MinorExponent).StringFixed(MinorExponent)
}

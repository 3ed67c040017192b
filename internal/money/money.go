// Package money holds the decimal helpers used for every monetary amount.
// Amounts are stored as integer cents and handled in process as decimals,
// so no value ever passes through binary floating point.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round quantizes to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToMinor converts an amount to integer minor units (cents).
func ToMinor(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts integer minor units back to an amount.
func FromMinor(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FromScaled interprets value as value / 10^precision, the way bank feeds
// transmit amounts.
func FromScaled(value int64, precision int32) decimal.Decimal {
	return decimal.New(value, -precision)
}

// Fraction returns num/den as a decimal.
func Fraction(num, den int) decimal.Decimal {
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
}

// IsCents reports whether d has no more than two decimal places.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// Parse reads a decimal amount such as "40.00".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Format renders d with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Package value holds the exact-arithmetic value types carried inside
// listing and trade events: currencies, units, money, quantities, per-quantity
// prices, percentages and discounts. Amounts are shopspring decimals and are
// always rendered in their canonical decimal text, never as floats.
package value

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses s as an exact decimal after trimming whitespace.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return d, nil
}

// MustDecimal is ParseDecimal for literals known to be valid.
func MustDecimal(s string) decimal.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatDecimal renders d in canonical form with trailing zeros removed.
func FormatDecimal(d decimal.Decimal) string {
	return d.String()
}

func pow10(e int32) decimal.Decimal {
	return decimal.New(1, e)
}

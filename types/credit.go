package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Credits returns a whole-number credit amount.
func Credits(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// ParseCredits parses a decimal credit amount such as "12.5".
func ParseCredits(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credits: parse %q: %w", s, err)
	}
	return d, nil
}

// MustCredits is like ParseCredits but panics on error. Use for constants.
func MustCredits(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

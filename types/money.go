// Package types provides common types used across credits.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a price is created without a currency.
const DefaultCurrency = "USD"

// Money is an exact decimal price in a currency. Package prices and amounts
// paid are Money; credit balances are plain decimals.
//
// Examples:
//   - USD("49.00") = $49.00
//   - EUR("199")   = €199.00
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217 uppercase: "USD", "EUR"
}

// NewMoney creates a Money value, normalising the currency code.
func NewMoney(amount decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// ParseMoney parses a decimal string amount in the given currency.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", amount, err)
	}
	return NewMoney(d, currency), nil
}

// USD creates a Money value in US Dollars. It panics on a malformed amount.
func USD(amount string) Money { return NewMoney(decimal.RequireFromString(amount), "USD") }

// EUR creates a Money value in Euros. It panics on a malformed amount.
func EUR(amount string) Money { return NewMoney(decimal.RequireFromString(amount), "EUR") }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return NewMoney(decimal.Zero, currency) }

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal returns true if both values have the same currency and numeric amount.
// Scale is ignored: USD("1.0") equals USD("1.00").
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// FormatMajor returns the amount rounded to the currency's minor unit.
func (m Money) FormatMajor() string {
	return m.Amount.StringFixedBank(int32(currencyDecimals(m.Currency)))
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "¥100"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Display  string          `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(b []byte) error {
	var raw struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Currency == "" {
		raw.Currency = DefaultCurrency
	}
	*m = NewMoney(raw.Amount, raw.Currency)
	return nil
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"USD": "$",
		"EUR": "€",
		"GBP": "£",
		"JPY": "¥",
		"CAD": "C$",
		"AUD": "A$",
		"INR": "₹",
	}
	if sym, ok := symbols[strings.ToUpper(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

func currencyDecimals(currency string) int {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP", "PYG", "IDR":
		return 0
	default:
		return 2
	}
}

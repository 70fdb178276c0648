package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   string
		currency string
		display  string
	}{
		{"USD", USD("49"), "49", "USD", "$49.00"},
		{"EUR", EUR("199.5"), "199.5", "EUR", "€199.50"},
		{"lowercase currency", NewMoney(decimal.RequireFromString("9.99"), "gbp"), "9.99", "GBP", "£9.99"},
		{"default currency", NewMoney(decimal.RequireFromString("5"), ""), "5", "USD", "$5.00"},
		{"zero decimal currency", NewMoney(decimal.RequireFromString("100"), "jpy"), "100", "JPY", "¥100"},
		{"unknown currency", NewMoney(decimal.RequireFromString("3"), "xyz"), "3", "XYZ", "XYZ 3.00"},
		{"Zero", Zero("usd"), "0", "USD", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.money.Amount.Equal(decimal.RequireFromString(tt.amount)) {
				t.Errorf("Amount: got %s, want %s", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("12.34", "usd")
	if err != nil {
		t.Fatalf("ParseMoney: %v", err)
	}
	if !m.Equal(USD("12.34")) {
		t.Errorf("got %s", m)
	}
	if _, err := ParseMoney("twelve", "usd"); err == nil {
		t.Error("expected parse error")
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD("49.9"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["amount"] != "49.9" {
		t.Errorf("amount = %q", decoded["amount"])
	}
	if decoded["currency"] != "USD" {
		t.Errorf("currency = %q", decoded["currency"])
	}
	if decoded["display"] != "$49.90" {
		t.Errorf("display = %q", decoded["display"])
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal Money: %v", err)
	}
	if !back.Equal(USD("49.9")) {
		t.Errorf("round trip = %s", back)
	}
}

func TestCredits(t *testing.T) {
	if !Credits(5).Equal(MustCredits("5.00")) {
		t.Error("Credits(5) != 5.00")
	}
	if _, err := ParseCredits("abc"); err == nil {
		t.Error("expected parse error")
	}
	if !NonNegative(Credits(-3)).IsZero() {
		t.Error("NonNegative should clamp negatives")
	}
	if !NonNegative(Credits(3)).Equal(Credits(3)) {
		t.Error("NonNegative should keep positives")
	}
}

func TestEntityStamp(t *testing.T) {
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	var e Entity
	e.Stamp(first)
	if !e.CreatedAt.Equal(first) || !e.UpdatedAt.Equal(first) {
		t.Fatalf("first stamp = %+v", e)
	}
	if e.CreatedAt.Location() != time.UTC {
		t.Error("stamps must be UTC")
	}

	later := first.Add(time.Hour)
	e.Stamp(later)
	if !e.CreatedAt.Equal(first) {
		t.Error("CreatedAt changed on second stamp")
	}
	if !e.UpdatedAt.Equal(later) {
		t.Error("UpdatedAt not advanced")
	}
}

package errs_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
)

func TestErrorUnwrapsToSentinel(t *testing.T) {
	amount := decimal.RequireFromString("12.50")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"InsufficientFunds", errs.InsufficientFunds("reserve", "acct-1", amount, "available < amount"), errs.ErrInsufficientFunds},
		{"InvalidState", errs.InvalidState("confirm", "acct-1", amount, "status is CONFIRMED"), errs.ErrInvalidState},
		{"ReservationExpired", errs.ReservationExpired("confirm", "acct-1", amount, "expired"), errs.ErrReservationExpired},
		{"Invalid", errs.Invalid("reserve", "acct-1", amount, "amount must be positive"), errs.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			wrapped := fmt.Errorf("outer: %w", tt.err)
			var typed *errs.Error
			if !errors.As(wrapped, &typed) {
				t.Fatal("errors.As failed through wrapping")
			}
			if typed.AccountID != "acct-1" {
				t.Errorf("AccountID = %q, want acct-1", typed.AccountID)
			}
			if !typed.Amount.Equal(amount) {
				t.Errorf("Amount = %s, want %s", typed.Amount, amount)
			}
		})
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := errs.InsufficientFunds("reserve", "acct-9", decimal.NewFromInt(7), "available 3 < 7")
	msg := err.Error()
	for _, want := range []string{"insufficient funds", "reserve", "account=acct-9", "amount=7", "available 3 < 7"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{
		errs.ErrNotFound,
		errs.ErrAccountNotFound,
		errs.ErrReservationNotFound,
		errs.ErrAllocationNotFound,
		errs.ErrPurchaseNotFound,
		errs.ErrPackageNotFound,
		fmt.Errorf("lookup: %w", errs.ErrReservationNotFound),
	} {
		if !errs.IsNotFound(err) {
			t.Errorf("IsNotFound(%v) = false", err)
		}
	}
	if errs.IsNotFound(errs.ErrInvalidState) {
		t.Error("IsNotFound(ErrInvalidState) = true")
	}
}

func TestIsRetryable(t *testing.T) {
	if !errs.IsRetryable(fmt.Errorf("update: %w", errs.ErrConflict)) {
		t.Error("conflict should be retryable")
	}
	if errs.IsRetryable(errs.ErrInsufficientFunds) {
		t.Error("insufficient funds should not be retryable")
	}
}

func TestMultiError(t *testing.T) {
	var m errs.MultiError
	if m.HasErrors() {
		t.Fatal("empty MultiError reports errors")
	}
	m.Add(nil)
	m.Add(errs.ErrConflict)
	m.Add(errs.ErrInvalidState)

	if len(m.Errors) != 2 {
		t.Fatalf("len = %d, want 2", len(m.Errors))
	}
	if m.First() != errs.ErrConflict {
		t.Errorf("First = %v", m.First())
	}
	if !errors.Is(m, errs.ErrInvalidState) {
		t.Error("errors.Is should see through MultiError")
	}
	if m.Error() != "credits: 2 errors occurred" {
		t.Errorf("Error() = %q", m.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := errs.ValidationError{Field: "amount", Message: "must be positive"}
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
}

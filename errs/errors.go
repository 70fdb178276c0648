// Package errs holds the error taxonomy shared by every credits package.
//
// Domain packages return these values from their transition methods, so the
// taxonomy lives in a leaf package; the root credits package re-exports it.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")
	ErrInvalidInput  = errors.New("credits: invalid input")

	// Balance and lifecycle errors
	ErrInsufficientFunds  = errors.New("credits: insufficient funds")
	ErrInvalidState       = errors.New("credits: invalid state")
	ErrReservationExpired = errors.New("credits: reservation expired")

	// Entity lookups
	ErrAccountNotFound     = fmt.Errorf("%w: account", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("%w: reservation", ErrNotFound)
	ErrAllocationNotFound  = fmt.Errorf("%w: allocation", ErrNotFound)
	ErrPurchaseNotFound    = fmt.Errorf("%w: purchase", ErrNotFound)
	ErrPackageNotFound     = fmt.Errorf("%w: package", ErrNotFound)
	ErrPricingNotFound     = fmt.Errorf("%w: operation pricing", ErrNotFound)

	// Catalog errors
	ErrPackageInactive    = errors.New("credits: package is inactive")
	ErrPricingUnavailable = errors.New("credits: pricing resolver not configured")

	// Store errors
	ErrConflict      = errors.New("credits: concurrent update conflict")
	ErrStoreClosed   = errors.New("credits: store is closed")
	ErrStoreNotReady = errors.New("credits: store not ready")
)

// Error is a precondition failure on a credit-affecting operation. It
// carries enough context to explain the rejection without a store lookup.
type Error struct {
	Op           string
	AccountID    string
	Amount       decimal.Decimal
	Precondition string
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.AccountID != "" {
		b.WriteString(" account=")
		b.WriteString(e.AccountID)
	}
	if !e.Amount.IsZero() {
		b.WriteString(" amount=")
		b.WriteString(e.Amount.String())
	}
	if e.Precondition != "" {
		b.WriteString(" (")
		b.WriteString(e.Precondition)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// InsufficientFunds builds an ErrInsufficientFunds failure.
func InsufficientFunds(op, accountID string, amount decimal.Decimal, precondition string) *Error {
	return &Error{Op: op, AccountID: accountID, Amount: amount, Precondition: precondition, Err: ErrInsufficientFunds}
}

// InvalidState builds an ErrInvalidState failure.
func InvalidState(op, accountID string, amount decimal.Decimal, precondition string) *Error {
	return &Error{Op: op, AccountID: accountID, Amount: amount, Precondition: precondition, Err: ErrInvalidState}
}

// ReservationExpired builds an ErrReservationExpired failure.
func ReservationExpired(op, accountID string, amount decimal.Decimal, precondition string) *Error {
	return &Error{Op: op, AccountID: accountID, Amount: amount, Precondition: precondition, Err: ErrReservationExpired}
}

// PackageInactive builds an ErrPackageInactive failure.
func PackageInactive(op, accountID string, amount decimal.Decimal, precondition string) *Error {
	return &Error{Op: op, AccountID: accountID, Amount: amount, Precondition: precondition, Err: ErrPackageInactive}
}

// Invalid builds an ErrInvalidInput failure.
func Invalid(op, accountID string, amount decimal.Decimal, precondition string) *Error {
	return &Error{Op: op, AccountID: accountID, Amount: amount, Precondition: precondition, Err: ErrInvalidInput}
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "credits: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("credits: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFundsError returns true if the operation was rejected because an
// account could not cover it.
func IsFundsError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStoreNotReady)
}

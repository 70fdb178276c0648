package credits

import "github.com/xraph/credits/errs"

// Sentinel errors, re-exported from package errs so callers can match on
// credits.ErrInsufficientFunds without a second import.
var (
	// General errors
	ErrNotFound      = errs.ErrNotFound
	ErrAlreadyExists = errs.ErrAlreadyExists
	ErrInvalidInput  = errs.ErrInvalidInput

	// Balance and lifecycle errors
	ErrInsufficientFunds  = errs.ErrInsufficientFunds
	ErrInvalidState       = errs.ErrInvalidState
	ErrReservationExpired = errs.ErrReservationExpired

	// Entity lookups
	ErrAccountNotFound     = errs.ErrAccountNotFound
	ErrReservationNotFound = errs.ErrReservationNotFound
	ErrAllocationNotFound  = errs.ErrAllocationNotFound
	ErrPurchaseNotFound    = errs.ErrPurchaseNotFound
	ErrPackageNotFound     = errs.ErrPackageNotFound
	ErrPricingNotFound     = errs.ErrPricingNotFound

	// Catalog errors
	ErrPackageInactive    = errs.ErrPackageInactive
	ErrPricingUnavailable = errs.ErrPricingUnavailable

	// Store errors
	ErrConflict      = errs.ErrConflict
	ErrStoreClosed   = errs.ErrStoreClosed
	ErrStoreNotReady = errs.ErrStoreNotReady
)

// Error is a rejected credit-affecting operation.
type Error = errs.Error

// ValidationError represents a validation failure with details.
type ValidationError = errs.ValidationError

// MultiError represents multiple errors that occurred.
type MultiError = errs.MultiError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool { return errs.IsNotFound(err) }

// IsFundsError returns true if the operation was rejected for lack of credit.
func IsFundsError(err error) bool { return errs.IsFundsError(err) }

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool { return errs.IsRetryable(err) }

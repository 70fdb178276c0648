package audithook

// Action constants for audit events.
const (
	// Reservation actions
	ActionReserved             = "reservation.created"
	ActionReservationConfirmed = "reservation.confirmed"
	ActionReservationReleased  = "reservation.released"
	ActionReservationExpired   = "reservation.expired"

	// Allocation actions
	ActionAllocated          = "allocation.created"
	ActionAllocationConsumed = "allocation.consumed"
	ActionAllocationRevoked  = "allocation.revoked"

	// Purchase actions
	ActionPurchaseInitiated = "purchase.initiated"
	ActionPurchaseCompleted = "purchase.completed"
	ActionPurchaseRefunded  = "purchase.refunded"
	ActionPurchaseFailed    = "purchase.failed"
	ActionPackageSaved      = "package.saved"

	// Ledger actions
	ActionOperationRejected = "operation.rejected"
	ActionReconciled        = "account.reconciled"
	ActionDiscrepancy       = "account.discrepancy"
)

// Resource constants for audit events.
const (
	ResourceReservation = "reservation"
	ResourceAllocation  = "allocation"
	ResourcePurchase    = "purchase"
	ResourcePackage     = "package"
	ResourceAccount     = "account"
)

// Category constants for audit events.
const (
	CategoryUsage   = "usage"
	CategoryBilling = "billing"
	CategoryPayment = "payment"
	CategoryLedger  = "ledger"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

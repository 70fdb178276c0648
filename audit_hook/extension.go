// Package audithook bridges credits lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnReserved             = (*Extension)(nil)
	_ plugin.OnReservationConfirmed = (*Extension)(nil)
	_ plugin.OnReservationReleased  = (*Extension)(nil)
	_ plugin.OnReservationExpired   = (*Extension)(nil)
	_ plugin.OnAllocated            = (*Extension)(nil)
	_ plugin.OnAllocationConsumed   = (*Extension)(nil)
	_ plugin.OnAllocationRevoked    = (*Extension)(nil)
	_ plugin.OnPurchaseInitiated    = (*Extension)(nil)
	_ plugin.OnPurchaseCompleted    = (*Extension)(nil)
	_ plugin.OnPurchaseRefunded     = (*Extension)(nil)
	_ plugin.OnPurchaseFailed       = (*Extension)(nil)
	_ plugin.OnPackageSaved         = (*Extension)(nil)
	_ plugin.OnOperationRejected    = (*Extension)(nil)
	_ plugin.OnReconciled           = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credits lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReserved implements plugin.OnReserved.
func (e *Extension) OnReserved(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReserved, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID, CategoryUsage, nil,
		reservationMeta(r)...,
	)
}

// OnReservationConfirmed implements plugin.OnReservationConfirmed.
func (e *Extension) OnReservationConfirmed(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID, CategoryUsage, nil,
		reservationMeta(r)...,
	)
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (e *Extension) OnReservationReleased(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationReleased, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID, CategoryUsage, nil,
		reservationMeta(r)...,
	)
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (e *Extension) OnReservationExpired(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationExpired, SeverityWarning, OutcomeSuccess,
		ResourceReservation, r.ID, CategoryUsage, nil,
		append(reservationMeta(r), "expires_at", r.ExpiresAt)...,
	)
}

func reservationMeta(r *reservation.Reservation) []any {
	kv := []any{
		"account_id", r.AccountID,
		"amount", r.Amount.String(),
		"status", string(r.Status),
	}
	if r.ReferenceID != "" {
		kv = append(kv, "reference_id", r.ReferenceID, "reference_type", r.ReferenceType)
	}
	if !r.AllocationID.IsNil() {
		kv = append(kv, "allocation_id", r.AllocationID.String())
	}
	return kv
}

// ──────────────────────────────────────────────────
// Allocation lifecycle hooks
// ──────────────────────────────────────────────────

// OnAllocated implements plugin.OnAllocated.
func (e *Extension) OnAllocated(ctx context.Context, a *allocation.Allocation) error {
	return e.record(ctx, ActionAllocated, SeverityInfo, OutcomeSuccess,
		ResourceAllocation, a.ID.String(), CategoryBilling, nil,
		"from_account_id", a.FromAccountID,
		"to_account_id", a.ToAccountID,
		"amount", a.Allocated.String(),
	)
}

// OnAllocationConsumed implements plugin.OnAllocationConsumed.
func (e *Extension) OnAllocationConsumed(ctx context.Context, a *allocation.Allocation, amount decimal.Decimal) error {
	return e.record(ctx, ActionAllocationConsumed, SeverityInfo, OutcomeSuccess,
		ResourceAllocation, a.ID.String(), CategoryUsage, nil,
		"to_account_id", a.ToAccountID,
		"amount", amount.String(),
		"remaining", a.Remaining.String(),
	)
}

// OnAllocationRevoked implements plugin.OnAllocationRevoked.
func (e *Extension) OnAllocationRevoked(ctx context.Context, a *allocation.Allocation, returned decimal.Decimal) error {
	return e.record(ctx, ActionAllocationRevoked, SeverityInfo, OutcomeSuccess,
		ResourceAllocation, a.ID.String(), CategoryBilling, nil,
		"from_account_id", a.FromAccountID,
		"to_account_id", a.ToAccountID,
		"returned", returned.String(),
	)
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseInitiated implements plugin.OnPurchaseInitiated.
func (e *Extension) OnPurchaseInitiated(ctx context.Context, p *purchase.Purchase) error {
	return e.record(ctx, ActionPurchaseInitiated, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.ID.String(), CategoryPayment, nil,
		purchaseMeta(p)...,
	)
}

// OnPurchaseCompleted implements plugin.OnPurchaseCompleted.
func (e *Extension) OnPurchaseCompleted(ctx context.Context, p *purchase.Purchase) error {
	return e.record(ctx, ActionPurchaseCompleted, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.ID.String(), CategoryPayment, nil,
		append(purchaseMeta(p), "gateway_transaction_id", p.GatewayTransactionID)...,
	)
}

// OnPurchaseRefunded implements plugin.OnPurchaseRefunded.
func (e *Extension) OnPurchaseRefunded(ctx context.Context, p *purchase.Purchase) error {
	return e.record(ctx, ActionPurchaseRefunded, SeverityWarning, OutcomeSuccess,
		ResourcePurchase, p.ID.String(), CategoryPayment, nil,
		purchaseMeta(p)...,
	)
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (e *Extension) OnPurchaseFailed(ctx context.Context, p *purchase.Purchase) error {
	return e.record(ctx, ActionPurchaseFailed, SeverityError, OutcomeFailure,
		ResourcePurchase, p.ID.String(), CategoryPayment, errors.New(p.FailureReason),
		purchaseMeta(p)...,
	)
}

// OnPackageSaved implements plugin.OnPackageSaved.
func (e *Extension) OnPackageSaved(ctx context.Context, pkg *purchase.Package) error {
	return e.record(ctx, ActionPackageSaved, SeverityInfo, OutcomeSuccess,
		ResourcePackage, pkg.ID.String(), CategoryBilling, nil,
		"code", pkg.Code,
		"credits", pkg.Credits.String(),
		"price", pkg.Price.String(),
		"active", pkg.Active,
	)
}

func purchaseMeta(p *purchase.Purchase) []any {
	return []any{
		"account_id", p.AccountID,
		"package_code", p.PackageCode,
		"credits", p.Credits.String(),
		"amount_paid", p.AmountPaid.String(),
	}
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnOperationRejected implements plugin.OnOperationRejected.
func (e *Extension) OnOperationRejected(ctx context.Context, op string, accountIDs []string, err error) error {
	severity := SeverityInfo
	if errors.Is(err, errs.ErrInvalidState) {
		severity = SeverityWarning
	}
	kv := []any{"op", op, "account_ids", accountIDs}
	var opErr *errs.Error
	if errors.As(err, &opErr) {
		kv = append(kv, "amount", opErr.Amount.String(), "precondition", opErr.Precondition)
	}
	resourceID := ""
	if len(accountIDs) > 0 {
		resourceID = accountIDs[0]
	}
	return e.record(ctx, ActionOperationRejected, severity, OutcomeFailure,
		ResourceAccount, resourceID, CategoryLedger, err,
		kv...,
	)
}

// OnReconciled implements plugin.OnReconciled. A replay with discrepancies
// is recorded as critical.
func (e *Extension) OnReconciled(ctx context.Context, r *txlog.Replay) error {
	if r.Consistent() {
		return e.record(ctx, ActionReconciled, SeverityInfo, OutcomeSuccess,
			ResourceAccount, r.AccountID, CategoryLedger, nil,
			"entries", r.Entries,
		)
	}
	fields := make([]string, 0, len(r.Discrepancies))
	for _, d := range r.Discrepancies {
		fields = append(fields, d.String())
	}
	return e.record(ctx, ActionDiscrepancy, SeverityCritical, OutcomeFailure,
		ResourceAccount, r.AccountID, CategoryLedger,
		fmt.Errorf("%d discrepancies", len(r.Discrepancies)),
		"entries", r.Entries,
		"discrepancies", fields,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

// Package plugin provides an extensible plugin system for credits.
// Plugins can hook into lifecycle events to extend functionality. Hooks run
// after the atomic unit that caused them has committed, never while an
// account is locked.
package plugin

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, ledger interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReserved is called when credit is put on hold.
type OnReserved interface {
	Plugin
	OnReserved(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationConfirmed is called when a hold is settled as spent.
type OnReservationConfirmed interface {
	Plugin
	OnReservationConfirmed(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationReleased is called when a hold is returned by the caller.
type OnReservationReleased interface {
	Plugin
	OnReservationReleased(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationExpired is called when the sweep reclaims a lapsed hold.
type OnReservationExpired interface {
	Plugin
	OnReservationExpired(ctx context.Context, r *reservation.Reservation) error
}

// OnSweepCompleted is called after each expiry sweep.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, expired int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Allocation hooks
// ──────────────────────────────────────────────────

// OnAllocated is called when a parent grants credit to a child.
type OnAllocated interface {
	Plugin
	OnAllocated(ctx context.Context, a *allocation.Allocation) error
}

// OnAllocationConsumed is called when a child spends from an allocation.
type OnAllocationConsumed interface {
	Plugin
	OnAllocationConsumed(ctx context.Context, a *allocation.Allocation, amount decimal.Decimal) error
}

// OnAllocationRevoked is called when an allocation is reclaimed.
type OnAllocationRevoked interface {
	Plugin
	OnAllocationRevoked(ctx context.Context, a *allocation.Allocation, returned decimal.Decimal) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseInitiated is called when a purchase is created PENDING.
type OnPurchaseInitiated interface {
	Plugin
	OnPurchaseInitiated(ctx context.Context, p *purchase.Purchase) error
}

// OnPurchaseCompleted is called when a purchase settles and credits land.
type OnPurchaseCompleted interface {
	Plugin
	OnPurchaseCompleted(ctx context.Context, p *purchase.Purchase) error
}

// OnPurchaseRefunded is called when a completed purchase is reversed.
type OnPurchaseRefunded interface {
	Plugin
	OnPurchaseRefunded(ctx context.Context, p *purchase.Purchase) error
}

// OnPurchaseFailed is called when payment for a pending purchase fails.
type OnPurchaseFailed interface {
	Plugin
	OnPurchaseFailed(ctx context.Context, p *purchase.Purchase) error
}

// OnPackageSaved is called when a catalog package is created or updated.
type OnPackageSaved interface {
	Plugin
	OnPackageSaved(ctx context.Context, pkg *purchase.Package) error
}

// ──────────────────────────────────────────────────
// Transaction log hooks
// ──────────────────────────────────────────────────

// OnEntriesAppended receives the log entries of every committed unit.
type OnEntriesAppended interface {
	Plugin
	OnEntriesAppended(ctx context.Context, entries []*txlog.Entry) error
}

// OnOperationRejected is called when an operation fails a precondition
// such as insufficient funds or an illegal state transition.
type OnOperationRejected interface {
	Plugin
	OnOperationRejected(ctx context.Context, op string, accountIDs []string, err error) error
}

// OnReconciled is called after an account's log has been replayed.
type OnReconciled interface {
	Plugin
	OnReconciled(ctx context.Context, r *txlog.Replay) error
}

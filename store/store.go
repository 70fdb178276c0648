package store

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// Tx is the view of a store inside one atomic unit. Every write made through
// a Tx commits together with the rest of the unit or not at all.
//
// Account methods only see accounts named when the unit was opened; those
// rows are created if missing and are locked for the life of the unit.
type Tx interface {
	// Account methods
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error

	// Reservation methods
	CreateReservation(ctx context.Context, r *reservation.Reservation) error
	GetReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	UpdateReservation(ctx context.Context, r *reservation.Reservation) error

	// Allocation methods
	CreateAllocation(ctx context.Context, a *allocation.Allocation) error
	GetAllocation(ctx context.Context, allocationID id.AllocationID) (*allocation.Allocation, error)
	UpdateAllocation(ctx context.Context, a *allocation.Allocation) error

	// Package catalog methods
	CreatePackage(ctx context.Context, p *purchase.Package) error
	GetPackage(ctx context.Context, packageID id.PackageID) (*purchase.Package, error)
	GetPackageByCode(ctx context.Context, code string) (*purchase.Package, error)
	UpdatePackage(ctx context.Context, p *purchase.Package) error

	// Purchase methods
	CreatePurchase(ctx context.Context, p *purchase.Purchase) error
	GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error)
	UpdatePurchase(ctx context.Context, p *purchase.Purchase) error

	// Transaction log methods
	AppendEntries(ctx context.Context, entries []*txlog.Entry) error
}

// Store is the unified storage interface for all credits entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	Tx

	// Atomic runs fn as one unit. The rows for accountIDs are created if
	// missing and locked in ascending id order before fn runs. If fn returns
	// an error nothing it wrote is kept, including newly created accounts.
	// Backends may return errs.ErrConflict when the unit lost a race; the
	// caller retries.
	Atomic(ctx context.Context, accountIDs []string, fn func(ctx context.Context, tx Tx) error) error

	// Read methods
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)
	ListReservations(ctx context.Context, accountID string, opts reservation.ListOpts) ([]*reservation.Reservation, error)
	ListDueReservations(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error)
	ListAllocations(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Allocation, error)
	ListPackages(ctx context.Context, activeOnly bool) ([]*purchase.Package, error)
	ListPurchases(ctx context.Context, accountID string, opts purchase.ListOpts) ([]*purchase.Purchase, error)
	ListEntries(ctx context.Context, q txlog.Query) ([]*txlog.Entry, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the domain store interfaces are satisfied.
var (
	_ account.Store         = (Tx)(nil)
	_ reservation.Store     = (Tx)(nil)
	_ allocation.Store      = (Tx)(nil)
	_ purchase.Store        = (Tx)(nil)
	_ txlog.Store           = (Tx)(nil)
	_ account.Lister        = (Store)(nil)
	_ reservation.Lister    = (Store)(nil)
	_ allocation.Lister     = (Store)(nil)
	_ purchase.PackageStore = (Store)(nil)
	_ purchase.Lister       = (Store)(nil)
	_ txlog.Lister          = (Store)(nil)
)

// LockOrder returns accountIDs sorted ascending with duplicates removed, the
// order in which every backend takes account locks. Empty ids are rejected.
func LockOrder(accountIDs []string) ([]string, error) {
	out := make([]string, 0, len(accountIDs))
	for _, a := range accountIDs {
		if a == "" {
			return nil, errs.ValidationError{Field: "account_id", Message: "must not be empty"}
		}
		out = append(out, a)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

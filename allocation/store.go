package allocation

import (
	"context"

	"github.com/xraph/credits/id"
)

// Store persists allocations.
type Store interface {
	CreateAllocation(ctx context.Context, a *Allocation) error
	GetAllocation(ctx context.Context, allocationID id.AllocationID) (*Allocation, error)
	UpdateAllocation(ctx context.Context, a *Allocation) error
}

// Lister is the read side of the allocation table.
type Lister interface {
	ListAllocations(ctx context.Context, opts ListOpts) ([]*Allocation, error)
}

// ListOpts filters allocations. Empty fields match everything.
type ListOpts struct {
	FromAccountID string
	ToAccountID   string
	Status        Status
	Limit         int
	Offset        int
}

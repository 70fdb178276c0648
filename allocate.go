package credits

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/txlog"
)

// AllocateInput describes a grant from a parent account to a child.
type AllocateInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Notes         string
}

// Allocate moves in.Amount of the parent's allocatable balance to the child
// as a standing grant. Both accounts are updated in one unit and both log
// entries share a group id.
func (l *Ledger) Allocate(ctx context.Context, in AllocateInput) (*allocation.Allocation, error) {
	if err := validateAmount("allocate", in.FromAccountID, in.Amount); err != nil {
		return nil, err
	}
	if in.ToAccountID == "" {
		return nil, errs.ValidationError{Field: "to_account_id", Message: "must not be empty"}
	}
	if in.FromAccountID == in.ToAccountID {
		return nil, errs.Invalid("allocate", in.FromAccountID, in.Amount, "an account cannot allocate to itself")
	}

	var out *allocation.Allocation
	err := l.atomic(ctx, "allocate", []string{in.FromAccountID, in.ToAccountID}, func(ctx context.Context, u *unit) error {
		parent, err := u.account(in.FromAccountID)
		if err != nil {
			return err
		}
		if parent.Allocatable().LessThan(in.Amount) {
			return errs.InsufficientFunds("allocate", in.FromAccountID, in.Amount,
				"allocatable balance "+parent.Allocatable().String()+" is below the requested amount")
		}

		a := allocation.New(in.FromAccountID, in.ToAccountID, in.Amount)
		a.Notes = in.Notes
		u.stamp(a)
		if err := u.tx.CreateAllocation(ctx, a); err != nil {
			return err
		}

		if _, err := u.apply(ctx, "allocate", in.FromAccountID, account.Delta{AllocatedOut: in.Amount}, &txlog.Entry{
			Type:         txlog.TypeAllocate,
			Amount:       in.Amount,
			AllocationID: a.ID,
			Description:  "allocate " + in.Amount.String() + " credits to " + in.ToAccountID,
		}); err != nil {
			return err
		}
		if _, err := u.apply(ctx, "allocate", in.ToAccountID, account.Delta{Current: in.Amount, AllocatedIn: in.Amount}, &txlog.Entry{
			Type:         txlog.TypeAllocate,
			Amount:       in.Amount,
			AllocationID: a.ID,
			Description:  "receive " + in.Amount.String() + " credits from " + in.FromAccountID,
		}); err != nil {
			return err
		}

		out = a
		u.on(func(ctx context.Context) { l.plugins.EmitAllocated(ctx, a) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeFromAllocation spends amount of an allocation directly, without a
// reservation. Only the child account is locked.
func (l *Ledger) ConsumeFromAllocation(ctx context.Context, allocationID id.AllocationID, amount decimal.Decimal) (*allocation.Allocation, error) {
	current, err := l.store.GetAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if err := validateAmount("consume_allocation", current.ToAccountID, amount); err != nil {
		return nil, err
	}

	var out *allocation.Allocation
	err = l.atomic(ctx, "consume_allocation", []string{current.ToAccountID}, func(ctx context.Context, u *unit) error {
		a, err := u.tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		child, err := u.account(a.ToAccountID)
		if err != nil {
			return err
		}
		if err := a.Consume(amount); err != nil {
			return err
		}
		if child.Available().LessThan(amount) {
			return errs.InsufficientFunds("consume_allocation", a.ToAccountID, amount,
				"available balance "+child.Available().String()+" is below the requested amount")
		}

		u.stamp(a)
		if err := u.tx.UpdateAllocation(ctx, a); err != nil {
			return err
		}
		if _, err := u.apply(ctx, "consume_allocation", a.ToAccountID, account.Delta{
			Current:  amount.Neg(),
			Consumed: amount,
		}, &txlog.Entry{
			Type:         txlog.TypeConsumption,
			Amount:       amount,
			AllocationID: a.ID,
			Description:  "consume " + amount.String() + " credits of allocation " + a.ID.String(),
		}); err != nil {
			return err
		}

		out = a
		u.on(func(ctx context.Context) { l.plugins.EmitAllocationConsumed(ctx, a, amount) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Revoke ends an allocation and returns what remains of it to the parent.
// It fails with ErrInvalidState when the child has already held or spent
// the credits that would be returned.
func (l *Ledger) Revoke(ctx context.Context, allocationID id.AllocationID) (*allocation.Allocation, error) {
	current, err := l.store.GetAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}

	var out *allocation.Allocation
	ids := []string{current.FromAccountID, current.ToAccountID}
	err = l.atomic(ctx, "revoke", ids, func(ctx context.Context, u *unit) error {
		a, err := u.tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		returned, err := a.Revoke(u.now)
		if err != nil {
			return err
		}
		child, err := u.account(a.ToAccountID)
		if err != nil {
			return err
		}
		if child.Available().LessThan(returned) {
			return errs.InvalidState("revoke", a.ToAccountID, returned,
				"child available balance "+child.Available().String()+" cannot cover the unspent allocation")
		}

		u.stamp(a)
		if err := u.tx.UpdateAllocation(ctx, a); err != nil {
			return err
		}
		if returned.IsPositive() {
			if _, err := u.apply(ctx, "revoke", a.ToAccountID, account.Delta{
				Current:     returned.Neg(),
				AllocatedIn: returned.Neg(),
			}, &txlog.Entry{
				Type:         txlog.TypeRevoke,
				Amount:       returned,
				AllocationID: a.ID,
				Description:  "return " + returned.String() + " credits to " + a.FromAccountID,
			}); err != nil {
				return err
			}
			if _, err := u.apply(ctx, "revoke", a.FromAccountID, account.Delta{AllocatedOut: returned.Neg()}, &txlog.Entry{
				Type:         txlog.TypeDeallocate,
				Amount:       returned,
				AllocationID: a.ID,
				Description:  "reclaim " + returned.String() + " credits from " + a.ToAccountID,
			}); err != nil {
				return err
			}
		}

		out = a
		u.on(func(ctx context.Context) { l.plugins.EmitAllocationRevoked(ctx, a, returned) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// ReserveInput describes a hold.
type ReserveInput struct {
	AccountID string

	// ReservationID is the caller's idempotency key. A key is generated
	// when it is empty.
	ReservationID string
	Amount        decimal.Decimal

	// TTL is how long the hold lives. Zero means the ledger default; a
	// negative TTL creates a hold that is already expired.
	TTL           time.Duration
	ReferenceID   string
	ReferenceType string

	// AllocationID sources the spend from an allocation granted to
	// AccountID. Confirming the hold consumes the allocation.
	AllocationID id.AllocationID
	Notes        string
}

// Reserve holds in.Amount of the account's available balance. Replaying a
// key with the same account and amount returns the stored reservation.
func (l *Ledger) Reserve(ctx context.Context, in ReserveInput) (*reservation.Reservation, error) {
	if err := validateAmount("reserve", in.AccountID, in.Amount); err != nil {
		return nil, err
	}
	if in.ReservationID == "" {
		in.ReservationID = id.NewReservationKey()
	}
	if in.TTL == 0 {
		in.TTL = l.defaultTTL
	}

	r, err := l.reserve(ctx, in)
	if errors.Is(err, errs.ErrAlreadyExists) {
		// Lost a race on the key with another unit; the retry sees the
		// committed row and either replays it or rejects the reuse.
		r, err = l.reserve(ctx, in)
	}
	return r, err
}

func (l *Ledger) reserve(ctx context.Context, in ReserveInput) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := l.atomic(ctx, "reserve", []string{in.AccountID}, func(ctx context.Context, u *unit) error {
		existing, err := u.tx.GetReservation(ctx, in.ReservationID)
		switch {
		case err == nil:
			if existing.AccountID != in.AccountID || !existing.Amount.Equal(in.Amount) {
				return errs.InvalidState("reserve", in.AccountID, in.Amount,
					"reservation id "+in.ReservationID+" is already used by a different request")
			}
			out = existing
			return nil
		case !errs.IsNotFound(err):
			return err
		}

		a, err := u.account(in.AccountID)
		if err != nil {
			return err
		}
		if a.Available().LessThan(in.Amount) {
			return errs.InsufficientFunds("reserve", in.AccountID, in.Amount,
				"available balance "+a.Available().String()+" is below the requested amount")
		}
		if !in.AllocationID.IsNil() {
			if err := checkAllocationSource(ctx, u, in); err != nil {
				return err
			}
		}

		r := &reservation.Reservation{
			ID:            in.ReservationID,
			AccountID:     in.AccountID,
			Amount:        in.Amount,
			Status:        reservation.StatusReserved,
			ExpiresAt:     u.now.Add(in.TTL),
			ReferenceID:   in.ReferenceID,
			ReferenceType: in.ReferenceType,
			AllocationID:  in.AllocationID,
			Notes:         in.Notes,
		}
		u.stamp(r)
		if err := u.tx.CreateReservation(ctx, r); err != nil {
			return err
		}
		if _, err := u.apply(ctx, "reserve", in.AccountID, account.Delta{Reserved: in.Amount}, &txlog.Entry{
			Type:          txlog.TypeReserve,
			Amount:        in.Amount,
			ReservationID: r.ID,
			AllocationID:  r.AllocationID,
			ReferenceID:   r.ReferenceID,
			ReferenceType: r.ReferenceType,
			Description:   "reserve " + in.Amount.String() + " credits",
		}); err != nil {
			return err
		}

		out = r
		u.on(func(ctx context.Context) { l.plugins.EmitReserved(ctx, r) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkAllocationSource(ctx context.Context, u *unit, in ReserveInput) error {
	alloc, err := u.tx.GetAllocation(ctx, in.AllocationID)
	if err != nil {
		return err
	}
	switch {
	case alloc.Status != allocation.StatusActive:
		return errs.InvalidState("reserve", in.AccountID, in.Amount,
			fmt.Sprintf("allocation %s is %s", alloc.ID, alloc.Status))
	case alloc.ToAccountID != in.AccountID:
		return errs.Invalid("reserve", in.AccountID, in.Amount,
			"allocation "+alloc.ID.String()+" was granted to "+alloc.ToAccountID)
	case alloc.Remaining.LessThan(in.Amount):
		return errs.InsufficientFunds("reserve", in.AccountID, in.Amount,
			"allocation "+alloc.ID.String()+" has "+alloc.Remaining.String()+" remaining")
	}
	return nil
}

// ReserveForOperation prices units of the operation code through the
// configured pricing.Resolver and reserves the cost. The price is resolved
// before any account is locked.
func (l *Ledger) ReserveForOperation(ctx context.Context, code string, units decimal.Decimal, in ReserveInput) (*reservation.Reservation, error) {
	if l.pricing == nil {
		return nil, ErrPricingUnavailable
	}
	op, err := l.pricing.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	cost, err := op.Cost(units)
	if err != nil {
		return nil, err
	}
	in.Amount = cost
	if in.ReferenceType == "" {
		in.ReferenceType = op.Code
	}
	return l.Reserve(ctx, in)
}

// Confirm settles a hold as spent. It fails with ErrReservationExpired once
// the hold's expiry has passed, and with ErrInvalidState if the hold has
// already been settled.
func (l *Ledger) Confirm(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return l.settle(ctx, "confirm", reservationID, func(ctx context.Context, u *unit, r *reservation.Reservation) error {
		if err := r.Confirm(u.now); err != nil {
			return err
		}

		var alloc *allocation.Allocation
		if !r.AllocationID.IsNil() {
			var err error
			if alloc, err = u.tx.GetAllocation(ctx, r.AllocationID); err != nil {
				return err
			}
			if err := alloc.Consume(r.Amount); err != nil {
				return err
			}
			u.stamp(alloc)
			if err := u.tx.UpdateAllocation(ctx, alloc); err != nil {
				return err
			}
		}

		if _, err := u.apply(ctx, "confirm", r.AccountID, account.Delta{
			Current:  r.Amount.Neg(),
			Reserved: r.Amount.Neg(),
			Consumed: r.Amount,
		}, &txlog.Entry{
			Type:          txlog.TypeConfirm,
			Amount:        r.Amount,
			ReservationID: r.ID,
			AllocationID:  r.AllocationID,
			ReferenceID:   r.ReferenceID,
			ReferenceType: r.ReferenceType,
			Description:   "confirm reservation " + r.ID,
		}); err != nil {
			return err
		}

		u.on(func(ctx context.Context) {
			l.plugins.EmitReservationConfirmed(ctx, r)
			if alloc != nil {
				l.plugins.EmitAllocationConsumed(ctx, alloc, r.Amount)
			}
		})
		return nil
	})
}

// Release returns a hold to the available balance.
func (l *Ledger) Release(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return l.settle(ctx, "release", reservationID, func(ctx context.Context, u *unit, r *reservation.Reservation) error {
		if err := r.Release(u.now); err != nil {
			return err
		}
		if _, err := u.apply(ctx, "release", r.AccountID, account.Delta{Reserved: r.Amount.Neg()}, &txlog.Entry{
			Type:          txlog.TypeRelease,
			Amount:        r.Amount,
			ReservationID: r.ID,
			AllocationID:  r.AllocationID,
			ReferenceID:   r.ReferenceID,
			ReferenceType: r.ReferenceType,
			Description:   "release reservation " + r.ID,
		}); err != nil {
			return err
		}
		u.on(func(ctx context.Context) { l.plugins.EmitReservationReleased(ctx, r) })
		return nil
	})
}

// expire reclaims one due hold for the sweep.
func (l *Ledger) expire(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return l.settle(ctx, "expire", reservationID, func(ctx context.Context, u *unit, r *reservation.Reservation) error {
		if err := r.Expire(u.now); err != nil {
			return err
		}
		if _, err := u.apply(ctx, "expire", r.AccountID, account.Delta{Reserved: r.Amount.Neg()}, &txlog.Entry{
			Type:          txlog.TypeExpire,
			Amount:        r.Amount,
			ReservationID: r.ID,
			AllocationID:  r.AllocationID,
			ReferenceID:   r.ReferenceID,
			ReferenceType: r.ReferenceType,
			Description:   "expire reservation " + r.ID,
		}); err != nil {
			return err
		}
		u.on(func(ctx context.Context) { l.plugins.EmitReservationExpired(ctx, r) })
		return nil
	})
}

// settle runs a terminal transition on a reservation. The reservation is
// read once to learn which account to lock and again inside the unit.
func (l *Ledger) settle(ctx context.Context, op, reservationID string,
	fn func(ctx context.Context, u *unit, r *reservation.Reservation) error,
) (*reservation.Reservation, error) {
	if reservationID == "" {
		return nil, errs.ValidationError{Field: "reservation_id", Message: "must not be empty"}
	}
	current, err := l.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	var out *reservation.Reservation
	err = l.atomic(ctx, op, []string{current.AccountID}, func(ctx context.Context, u *unit) error {
		r, err := u.tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := fn(ctx, u, r); err != nil {
			return err
		}
		u.stamp(r)
		if err := u.tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validateAmount(op, accountID string, amount decimal.Decimal) error {
	if accountID == "" {
		return errs.ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	if !amount.IsPositive() {
		return errs.Invalid(op, accountID, amount, "amount must be positive")
	}
	return nil
}

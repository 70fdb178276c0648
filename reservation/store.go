package reservation

import (
	"context"
	"time"
)

// Store persists reservations. CreateReservation fails with
// errs.ErrAlreadyExists when the id is taken.
type Store interface {
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, reservationID string) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
}

// Lister is the read side of the reservation table.
type Lister interface {
	ListReservations(ctx context.Context, accountID string, opts ListOpts) ([]*Reservation, error)
	// ListDueReservations returns RESERVED holds with ExpiresAt before now,
	// oldest first.
	ListDueReservations(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

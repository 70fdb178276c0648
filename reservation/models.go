// Package reservation models temporary holds on an account's available
// balance and the lifecycle that settles them.
package reservation

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status is the closed set of reservation states. RESERVED is the only
// non-terminal state.
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusReleased  Status = "RELEASED"
	StatusExpired   Status = "EXPIRED"
)

var transitions = map[Status][]Status{
	StatusReserved: {StatusConfirmed, StatusReleased, StatusExpired},
}

// ParseStatus rejects anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusReserved, StatusConfirmed, StatusReleased, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("reservation: unknown status %q", s)
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) { return string(s), nil }

// Scan implements sql.Scanner.
func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("reservation: cannot scan %T into Status", src)
	}
}

// Reservation is a hold of Amount credits against one account.
type Reservation struct {
	types.Entity
	ID            string          `json:"reservation_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	ExpiresAt     time.Time       `json:"expires_at"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	AllocationID  id.ID           `json:"allocation_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	ExpiredAt     *time.Time      `json:"expired_at,omitempty"`
}

// IsExpired reports whether the hold can no longer be confirmed at now.
func (r *Reservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsDue reports whether the expiry sweep should reclaim the hold at now.
func (r *Reservation) IsDue(now time.Time) bool {
	return r.Status == StatusReserved && r.ExpiresAt.Before(now)
}

// Confirm settles the hold as spent.
func (r *Reservation) Confirm(now time.Time) error {
	if err := r.transition("confirm", StatusConfirmed); err != nil {
		return err
	}
	if r.IsExpired(now) {
		return errs.ReservationExpired("confirm", r.AccountID, r.Amount,
			"reservation "+r.ID+" expired at "+r.ExpiresAt.Format(time.RFC3339))
	}
	r.Status = StatusConfirmed
	r.ConfirmedAt = &now
	return nil
}

// Release returns the held credits to the available balance.
func (r *Reservation) Release(now time.Time) error {
	if err := r.transition("release", StatusReleased); err != nil {
		return err
	}
	r.Status = StatusReleased
	r.ReleasedAt = &now
	return nil
}

// Expire behaves like Release but records that the TTL lapsed.
func (r *Reservation) Expire(now time.Time) error {
	if err := r.transition("expire", StatusExpired); err != nil {
		return err
	}
	if !r.ExpiresAt.Before(now) {
		return errs.InvalidState("expire", r.AccountID, r.Amount,
			"reservation "+r.ID+" is not due until "+r.ExpiresAt.Format(time.RFC3339))
	}
	r.Status = StatusExpired
	r.ExpiredAt = &now
	return nil
}

func (r *Reservation) transition(op string, next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return errs.InvalidState(op, r.AccountID, r.Amount,
			fmt.Sprintf("reservation %s is %s", r.ID, r.Status))
	}
	return nil
}

// Clone returns a deep copy.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.ConfirmedAt = cloneTime(r.ConfirmedAt)
	c.ReleasedAt = cloneTime(r.ReleasedAt)
	c.ExpiredAt = cloneTime(r.ExpiredAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

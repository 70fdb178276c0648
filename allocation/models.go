// Package allocation models standing grants of spendable credit from a
// parent account to a child account.
package allocation

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Status is the closed set of allocation states.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
)

// ParseStatus rejects anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusRevoked:
		return st, nil
	default:
		return "", fmt.Errorf("allocation: unknown status %q", s)
	}
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
		return fmt.Errorf("allocation: cannot scan %T into Status", src)
	}
}

// Allocation is a grant of Allocated credits from FromAccountID to
// ToAccountID. Allocated always equals Remaining + Consumed + Returned.
type Allocation struct {
	types.Entity
	ID            id.AllocationID `json:"allocation_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Allocated     decimal.Decimal `json:"allocated_amount"`
	Remaining     decimal.Decimal `json:"remaining_amount"`
	Consumed      decimal.Decimal `json:"consumed_amount"`
	Returned      decimal.Decimal `json:"returned_amount"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	RevokedAt     *time.Time      `json:"revoked_at,omitempty"`
}

// New returns an ACTIVE allocation with the full amount remaining.
func New(from, to string, amount decimal.Decimal) *Allocation {
	return &Allocation{
		ID:            id.NewAllocationID(),
		FromAccountID: from,
		ToAccountID:   to,
		Allocated:     amount,
		Remaining:     amount,
		Consumed:      decimal.Zero,
		Returned:      decimal.Zero,
		Status:        StatusActive,
	}
}

// Balanced reports whether the conservation identity holds.
func (a *Allocation) Balanced() bool {
	return a.Allocated.Equal(a.Remaining.Add(a.Consumed).Add(a.Returned))
}

// Consume moves amount from Remaining to Consumed.
func (a *Allocation) Consume(amount decimal.Decimal) error {
	if a.Status != StatusActive {
		return errs.InvalidState("consume_allocation", a.ToAccountID, amount,
			fmt.Sprintf("allocation %s is %s", a.ID, a.Status))
	}
	if amount.GreaterThan(a.Remaining) {
		return errs.InsufficientFunds("consume_allocation", a.ToAccountID, amount,
			"allocation "+a.ID.String()+" has "+a.Remaining.String()+" remaining")
	}
	a.Remaining = a.Remaining.Sub(amount)
	a.Consumed = a.Consumed.Add(amount)
	return nil
}

// Revoke returns everything remaining to the parent and reports how much
// was returned.
func (a *Allocation) Revoke(now time.Time) (decimal.Decimal, error) {
	if a.Status != StatusActive {
		return decimal.Zero, errs.InvalidState("revoke", a.FromAccountID, a.Remaining,
			fmt.Sprintf("allocation %s is %s", a.ID, a.Status))
	}
	returned := a.Remaining
	a.Returned = a.Returned.Add(returned)
	a.Remaining = decimal.Zero
	a.Status = StatusRevoked
	a.RevokedAt = &now
	return returned, nil
}

// Clone returns a deep copy.
func (a *Allocation) Clone() *Allocation {
	c := *a
	if a.RevokedAt != nil {
		t := *a.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

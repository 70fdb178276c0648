// Package txlog is the append-only record of every balance or reservation
// change. Entries are written in the same atomic unit as the change they
// describe and are never updated or deleted.
package txlog

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/id"
)

// Type is the closed set of logged transitions.
type Type string

const (
	TypePurchase    Type = "PURCHASE"
	TypeConsumption Type = "CONSUMPTION"
	TypeRefund      Type = "REFUND"
	TypeReserve     Type = "RESERVE"
	TypeConfirm     Type = "CONFIRM"
	TypeRelease     Type = "RELEASE"
	TypeExpire      Type = "EXPIRE"
	TypeAllocate    Type = "ALLOCATE"
	TypeDeallocate  Type = "DEALLOCATE"
	TypeRevoke      Type = "REVOKE"
)

// Types lists every Type in declaration order.
var Types = []Type{
	TypePurchase, TypeConsumption, TypeRefund,
	TypeReserve, TypeConfirm, TypeRelease, TypeExpire,
	TypeAllocate, TypeDeallocate, TypeRevoke,
}

func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("txlog: unknown transaction type %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t Type) Value() (driver.Value, error) { return string(t), nil }

// Scan implements sql.Scanner.
func (t *Type) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	default:
		return fmt.Errorf("txlog: cannot scan %T into Type", src)
	}
}

// Entry is one logged transition on one account. Before/after pairs are
// snapshots of the account taken inside the atomic unit, and Sequence is the
// account version the write produced, which orders an account's entries even
// when their timestamps collide.
type Entry struct {
	ID             id.TransactionID `json:"transaction_id"`
	GroupID        id.GroupID       `json:"group_id"`
	AccountID      string           `json:"account_id"`
	Sequence       int64            `json:"sequence"`
	Type           Type             `json:"transaction_type"`
	Amount         decimal.Decimal  `json:"amount"`
	BalanceBefore  decimal.Decimal  `json:"balance_before"`
	BalanceAfter   decimal.Decimal  `json:"balance_after"`
	ReservedBefore decimal.Decimal  `json:"reserved_before"`
	ReservedAfter  decimal.Decimal  `json:"reserved_after"`
	ReservationID  string           `json:"reservation_id,omitempty"`
	AllocationID   id.ID            `json:"allocation_id,omitempty"`
	PurchaseID     id.ID            `json:"package_purchase_id,omitempty"`
	ReferenceID    string           `json:"reference_id,omitempty"`
	ReferenceType  string           `json:"reference_type,omitempty"`
	Description    string           `json:"description,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Stamp sets CreatedAt once; entries have no update time.
func (e *Entry) Stamp(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
}

// BalanceDelta is BalanceAfter minus BalanceBefore.
func (e *Entry) BalanceDelta() decimal.Decimal { return e.BalanceAfter.Sub(e.BalanceBefore) }

// ReservedDelta is ReservedAfter minus ReservedBefore.
func (e *Entry) ReservedDelta() decimal.Decimal { return e.ReservedAfter.Sub(e.ReservedBefore) }

// Order selects the sort direction of a Query.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// Query selects entries for one account. Zero time bounds are open; From is
// inclusive and To exclusive.
type Query struct {
	AccountID     string
	Types         []Type
	ReservationID string
	From          time.Time
	To            time.Time
	Order         Order
	Limit         int
	Offset        int
}

// Matches reports whether e satisfies every filter of q except paging.
func (q Query) Matches(e *Entry) bool {
	if q.AccountID != "" && e.AccountID != q.AccountID {
		return false
	}
	if q.ReservationID != "" && e.ReservationID != q.ReservationID {
		return false
	}
	if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.CreatedAt.Before(q.To) {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Package purchase holds the credit package catalog and the lifecycle of a
// package purchase.
package purchase

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Package is a catalog item: a quantity of credits sold at a price.
type Package struct {
	types.Entity
	ID           id.PackageID    `json:"package_id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Credits      decimal.Decimal `json:"credits"`
	Price        types.Money     `json:"price"`
	Active       bool            `json:"active"`
	DisplayOrder int             `json:"display_order"`
}

// Validate checks the catalog fields a purchase depends on.
func (p *Package) Validate() error {
	switch {
	case p.Code == "":
		return errs.ValidationError{Field: "code", Message: "must not be empty"}
	case !p.Credits.IsPositive():
		return errs.ValidationError{Field: "credits", Message: "must be positive"}
	case p.Price.IsNegative():
		return errs.ValidationError{Field: "price", Message: "must not be negative"}
	}
	return nil
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusRefunded  Status = "REFUNDED"
	StatusFailed    Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// ParseStatus rejects anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusRefunded, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("purchase: unknown status %q", s)
	}
}

func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

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
		return fmt.Errorf("purchase: cannot scan %T into Status", src)
	}
}

// Purchase records one account buying one package. Only the PENDING to
// COMPLETED transition (and its REFUNDED reversal) touches balances.
type Purchase struct {
	types.Entity
	ID                   id.PurchaseID   `json:"purchase_id"`
	AccountID            string          `json:"account_id"`
	PackageID            id.PackageID    `json:"package_id"`
	PackageCode          string          `json:"package_code"`
	Credits              decimal.Decimal `json:"credits_purchased"`
	AmountPaid           types.Money     `json:"amount_paid"`
	PaymentMethod        string          `json:"payment_method,omitempty"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	Status               Status          `json:"payment_status"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	RefundedAt           *time.Time      `json:"refunded_at,omitempty"`
	FailedAt             *time.Time      `json:"failed_at,omitempty"`
}

// New prices a PENDING purchase of pkg for accountID.
func New(accountID string, pkg *Package) *Purchase {
	return &Purchase{
		ID:          id.NewPurchaseID(),
		AccountID:   accountID,
		PackageID:   pkg.ID,
		PackageCode: pkg.Code,
		Credits:     pkg.Credits,
		AmountPaid:  pkg.Price,
		Status:      StatusPending,
	}
}

func (p *Purchase) Complete(gatewayTransactionID string, now time.Time) error {
	if err := p.transition("complete_purchase", StatusCompleted); err != nil {
		return err
	}
	p.Status = StatusCompleted
	p.GatewayTransactionID = gatewayTransactionID
	p.CompletedAt = &now
	return nil
}

func (p *Purchase) Refund(now time.Time) error {
	if err := p.transition("refund_purchase", StatusRefunded); err != nil {
		return err
	}
	p.Status = StatusRefunded
	p.RefundedAt = &now
	return nil
}

func (p *Purchase) Fail(reason string, now time.Time) error {
	if err := p.transition("fail_purchase", StatusFailed); err != nil {
		return err
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.FailedAt = &now
	return nil
}

func (p *Purchase) transition(op string, next Status) error {
	if !p.Status.CanTransitionTo(next) {
		return errs.InvalidState(op, p.AccountID, p.Credits,
			fmt.Sprintf("purchase %s is %s", p.ID, p.Status))
	}
	return nil
}

// Clone returns a deep copy.
func (p *Purchase) Clone() *Purchase {
	c := *p
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.RefundedAt = cloneTime(p.RefundedAt)
	c.FailedAt = cloneTime(p.FailedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Package account models the per-account credit record and the single
// arithmetic primitive allowed to change it.
package account

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/types"
)

// Account is the ledger record of one external account.
type Account struct {
	types.Entity
	AccountID           string          `json:"account_id"`
	Current             decimal.Decimal `json:"current_balance"`
	Reserved            decimal.Decimal `json:"reserved_balance"`
	TotalPurchased      decimal.Decimal `json:"total_purchased"`
	TotalConsumed       decimal.Decimal `json:"total_consumed"`
	AllocatedToChildren decimal.Decimal `json:"allocated_to_children"`
	AllocatedFromParent decimal.Decimal `json:"allocated_from_parent"`
	Version             int64           `json:"version"`
}

// New returns an empty record for accountID.
func New(accountID string) *Account {
	return &Account{AccountID: accountID}
}

// Available is current minus reserved.
func (a *Account) Available() decimal.Decimal {
	return types.NonNegative(a.Current.Sub(a.Reserved))
}

// Allocatable is the part of Available a parent may still grant to children.
func (a *Account) Allocatable() decimal.Decimal {
	return types.NonNegative(a.Available().Sub(a.AllocatedToChildren))
}

// Delta is a signed change to every balance field of an Account.
type Delta struct {
	Current      decimal.Decimal
	Reserved     decimal.Decimal
	Purchased    decimal.Decimal
	Consumed     decimal.Decimal
	AllocatedOut decimal.Decimal
	AllocatedIn  decimal.Decimal
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Current.IsZero() && d.Reserved.IsZero() && d.Purchased.IsZero() &&
		d.Consumed.IsZero() && d.AllocatedOut.IsZero() && d.AllocatedIn.IsZero()
}

// Apply returns a copy of a with d applied. It rejects any result that would
// make a field negative or put reserved above current; a is never modified.
func (a *Account) Apply(op string, amount decimal.Decimal, d Delta) (*Account, error) {
	next := *a
	next.Current = a.Current.Add(d.Current)
	next.Reserved = a.Reserved.Add(d.Reserved)
	next.TotalPurchased = a.TotalPurchased.Add(d.Purchased)
	next.TotalConsumed = a.TotalConsumed.Add(d.Consumed)
	next.AllocatedToChildren = a.AllocatedToChildren.Add(d.AllocatedOut)
	next.AllocatedFromParent = a.AllocatedFromParent.Add(d.AllocatedIn)

	switch {
	case next.Current.IsNegative():
		return nil, errs.InsufficientFunds(op, a.AccountID, amount,
			"current balance "+a.Current.String()+" cannot cover "+d.Current.Neg().String())
	case next.Reserved.IsNegative():
		return nil, errs.InsufficientFunds(op, a.AccountID, amount,
			"reserved balance "+a.Reserved.String()+" cannot release "+d.Reserved.Neg().String())
	case next.Reserved.GreaterThan(next.Current):
		return nil, errs.InsufficientFunds(op, a.AccountID, amount,
			"reserved "+next.Reserved.String()+" would exceed current "+next.Current.String())
	case next.TotalPurchased.IsNegative(), next.TotalConsumed.IsNegative(),
		next.AllocatedToChildren.IsNegative(), next.AllocatedFromParent.IsNegative():
		return nil, errs.InvalidState(op, a.AccountID, amount, "cumulative counter would go negative")
	}
	return &next, nil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

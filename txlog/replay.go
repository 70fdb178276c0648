package txlog

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/id"
)

// Discrepancy is one place where the log disagrees with itself or with the
// live account record.
type Discrepancy struct {
	EntryID  id.TransactionID `json:"transaction_id,omitempty"`
	Field    string           `json:"field"`
	Expected decimal.Decimal  `json:"expected"`
	Actual   decimal.Decimal  `json:"actual"`
}

func (d Discrepancy) String() string {
	if d.EntryID.IsNil() {
		return fmt.Sprintf("%s: log says %s, account says %s", d.Field, d.Expected, d.Actual)
	}
	return fmt.Sprintf("%s at %s: expected %s, got %s", d.Field, d.EntryID, d.Expected, d.Actual)
}

// Replay is the account state rebuilt from its log, starting from the empty
// record every account is lazily created with.
type Replay struct {
	AccountID     string          `json:"account_id"`
	Entries       int             `json:"entries"`
	Balance       decimal.Decimal `json:"current_balance"`
	Reserved      decimal.Decimal `json:"reserved_balance"`
	Purchased     decimal.Decimal `json:"total_purchased"`
	Consumed      decimal.Decimal `json:"total_consumed"`
	AllocatedOut  decimal.Decimal `json:"allocated_to_children"`
	AllocatedIn   decimal.Decimal `json:"allocated_from_parent"`
	Discrepancies []Discrepancy   `json:"discrepancies,omitempty"`
}

// Consistent reports whether no discrepancy was found.
func (r *Replay) Consistent() bool { return len(r.Discrepancies) == 0 }

// ReplayEntries folds entries into a Replay in Sequence order; entries with
// equal sequences keep the order given. Each entry is checked for continuity
// with its predecessor and for the before/after movement its type implies.
func ReplayEntries(accountID string, entries []*Entry) *Replay {
	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(a, b *Entry) int { return cmp.Compare(a.Sequence, b.Sequence) })

	r := &Replay{AccountID: accountID}
	for _, e := range ordered {
		r.Entries++
		r.check(e.ID, "balance_before", r.Balance, e.BalanceBefore)
		r.check(e.ID, "reserved_before", r.Reserved, e.ReservedBefore)

		balance, reserved := e.BalanceDelta(), e.ReservedDelta()
		wantBalance, wantReserved := expectedDelta(e)
		r.check(e.ID, "balance_delta", wantBalance, balance)
		r.check(e.ID, "reserved_delta", wantReserved, reserved)

		switch e.Type {
		case TypePurchase:
			r.Purchased = r.Purchased.Add(e.Amount)
		case TypeRefund:
			r.Purchased = r.Purchased.Sub(e.Amount)
		case TypeConfirm, TypeConsumption:
			r.Consumed = r.Consumed.Add(e.Amount)
		case TypeAllocate:
			if balance.IsPositive() {
				r.AllocatedIn = r.AllocatedIn.Add(e.Amount)
			} else {
				r.AllocatedOut = r.AllocatedOut.Add(e.Amount)
			}
		case TypeRevoke:
			r.AllocatedIn = r.AllocatedIn.Sub(e.Amount)
		case TypeDeallocate:
			r.AllocatedOut = r.AllocatedOut.Sub(e.Amount)
		}

		r.Balance = e.BalanceAfter
		r.Reserved = e.ReservedAfter
	}
	return r
}

// Compare records a discrepancy for every field where the live record
// differs from the replayed one.
func (r *Replay) Compare(balance, reserved, purchased, consumed, allocatedOut, allocatedIn decimal.Decimal) {
	r.check(id.Nil, "current_balance", r.Balance, balance)
	r.check(id.Nil, "reserved_balance", r.Reserved, reserved)
	r.check(id.Nil, "total_purchased", r.Purchased, purchased)
	r.check(id.Nil, "total_consumed", r.Consumed, consumed)
	r.check(id.Nil, "allocated_to_children", r.AllocatedOut, allocatedOut)
	r.check(id.Nil, "allocated_from_parent", r.AllocatedIn, allocatedIn)
}

func (r *Replay) check(entry id.TransactionID, field string, expected, actual decimal.Decimal) {
	if !expected.Equal(actual) {
		r.Discrepancies = append(r.Discrepancies, Discrepancy{
			EntryID: entry, Field: field, Expected: expected, Actual: actual,
		})
	}
}

// expectedDelta is the balance and reserved movement an entry's type implies.
// ALLOCATE moves the child's balance but not the parent's, so the observed
// balance movement is accepted when it is either zero or the amount.
func expectedDelta(e *Entry) (balance, reserved decimal.Decimal) {
	amt := e.Amount
	switch e.Type {
	case TypePurchase:
		return amt, decimal.Zero
	case TypeRefund, TypeConsumption, TypeRevoke:
		return amt.Neg(), decimal.Zero
	case TypeReserve:
		return decimal.Zero, amt
	case TypeConfirm:
		return amt.Neg(), amt.Neg()
	case TypeRelease, TypeExpire:
		return decimal.Zero, amt.Neg()
	case TypeAllocate:
		if d := e.BalanceDelta(); d.IsZero() {
			return decimal.Zero, decimal.Zero
		}
		return amt, decimal.Zero
	default:
		return decimal.Zero, decimal.Zero
	}
}

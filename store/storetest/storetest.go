// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Run executes the whole suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"AtomicCreatesAccounts", testAtomicCreatesAccounts},
		{"AtomicRollsBack", testAtomicRollsBack},
		{"AccountVersionConflict", testAccountVersionConflict},
		{"Reservations", testReservations},
		{"DueReservations", testDueReservations},
		{"Allocations", testAllocations},
		{"Packages", testPackages},
		{"Purchases", testPurchases},
		{"Entries", testEntries},
		{"ConcurrentUnits", testConcurrentUnits},
		{"RejectsEmptyAccountID", testRejectsEmptyAccountID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testAtomicCreatesAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetAccount(ctx, "acct-a"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("GetAccount before create: err = %v", err)
	}

	err := s.Atomic(ctx, []string{"acct-b", "acct-a", "acct-b"}, func(ctx context.Context, tx store.Tx) error {
		for _, accountID := range []string{"acct-a", "acct-b"} {
			a, err := tx.GetAccount(ctx, accountID)
			if err != nil {
				return err
			}
			if !a.Current.IsZero() || !a.Reserved.IsZero() {
				return fmt.Errorf("new account %s not empty: %+v", accountID, a)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	accounts, err := s.ListAccounts(ctx, account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 || accounts[0].AccountID != "acct-a" || accounts[1].AccountID != "acct-b" {
		t.Errorf("ListAccounts = %+v", accounts)
	}
}

func testAtomicRollsBack(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, []string{"acct"}, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAccount(ctx, "acct")
		if err != nil {
			return err
		}
		a.Current = d("100")
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.CreateReservation(ctx, newReservation("rb-1", "acct", "10", base)); err != nil {
			return err
		}
		if err := tx.AppendEntries(ctx, []*txlog.Entry{newEntry("acct", txlog.TypeReserve, base)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic err = %v, want boom", err)
	}

	if _, err := s.GetAccount(ctx, "acct"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("account created by failed unit survived: err = %v", err)
	}
	if _, err := s.GetReservation(ctx, "rb-1"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("reservation written by failed unit survived: err = %v", err)
	}
	entries, err := s.ListEntries(ctx, txlog.Query{AccountID: "acct"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries written by failed unit survived: %d", len(entries))
	}
}

func testAccountVersionConflict(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Atomic(ctx, []string{"acct"}, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAccount(ctx, "acct")
		if err != nil {
			return err
		}
		stale := a.Clone()
		a.Current = d("5")
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		if a.Version != stale.Version+1 {
			return fmt.Errorf("version = %d, want %d", a.Version, stale.Version+1)
		}
		stale.Current = d("7")
		if err := tx.UpdateAccount(ctx, stale); !errors.Is(err, errs.ErrConflict) {
			return fmt.Errorf("stale update: err = %v, want ErrConflict", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := s.GetAccount(ctx, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Current.Equal(d("5")) {
		t.Errorf("Current = %s, want 5", a.Current)
	}
}

func testReservations(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newReservation("job-1", "acct", "12.5", base.Add(time.Hour))
	r.ReferenceID = "doc-9"
	r.ReferenceType = "DOCUMENT"
	r.AllocationID = id.NewAllocationID()

	if err := s.CreateReservation(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateReservation(ctx, newReservation("job-1", "other", "1", base)); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate key: err = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetReservation(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Amount.Equal(d("12.5")) || got.Status != reservation.StatusReserved ||
		!got.ExpiresAt.Equal(r.ExpiresAt) || got.ReferenceID != "doc-9" || got.AllocationID != r.AllocationID {
		t.Errorf("round trip = %+v", got)
	}

	now := base.Add(time.Minute)
	if err := got.Confirm(now); err != nil {
		t.Fatal(err)
	}
	got.Stamp(now)
	if err := s.UpdateReservation(ctx, got); err != nil {
		t.Fatal(err)
	}
	again, err := s.GetReservation(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != reservation.StatusConfirmed || again.ConfirmedAt == nil || !again.ConfirmedAt.Equal(now) {
		t.Errorf("update not persisted: %+v", again)
	}

	if _, err := s.GetReservation(ctx, "missing"); !errors.Is(err, errs.ErrReservationNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	if err := s.UpdateReservation(ctx, newReservation("missing", "acct", "1", base)); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("update missing: err = %v", err)
	}

	list, err := s.ListReservations(ctx, "acct", reservation.ListOpts{Status: reservation.StatusConfirmed})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "job-1" {
		t.Errorf("ListReservations = %+v", list)
	}
}

func testDueReservations(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, r := range []*reservation.Reservation{
		newReservation("late", "acct", "1", base.Add(-time.Minute)),
		newReservation("early", "acct", "1", base.Add(-time.Hour)),
		newReservation("future", "acct", "1", base.Add(time.Hour)),
		newReservation("exact", "acct", "1", base),
	} {
		if err := s.CreateReservation(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	released := newReservation("released", "acct", "1", base.Add(-2*time.Hour))
	released.Status = reservation.StatusReleased
	if err := s.CreateReservation(ctx, released); err != nil {
		t.Fatal(err)
	}

	due, err := s.ListDueReservations(ctx, base, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || due[0].ID != "early" || due[1].ID != "late" {
		t.Errorf("due = %v", reservationIDs(due))
	}

	due, err = s.ListDueReservations(ctx, base, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != "early" {
		t.Errorf("limited due = %v", reservationIDs(due))
	}
}

func testAllocations(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := allocation.New("parent", "child", d("400"))
	a.Notes = "team budget"
	a.Stamp(base)
	other := allocation.New("parent", "sibling", d("50"))
	other.Stamp(base.Add(time.Second))

	for _, al := range []*allocation.Allocation{a, other} {
		if err := s.CreateAllocation(ctx, al); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreateAllocation(ctx, a); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate: err = %v", err)
	}

	got, err := s.GetAllocation(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Remaining.Equal(d("400")) || got.Notes != "team budget" || !got.Balanced() {
		t.Errorf("round trip = %+v", got)
	}

	if _, err := got.Revoke(base); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAllocation(ctx, got); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListAllocations(ctx, allocation.ListOpts{FromAccountID: "parent", Status: allocation.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ToAccountID != "sibling" {
		t.Errorf("active allocations = %+v", active)
	}

	all, err := s.ListAllocations(ctx, allocation.ListOpts{FromAccountID: "parent"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != a.ID || all[0].Status != allocation.StatusRevoked {
		t.Errorf("all allocations = %+v", all)
	}

	if _, err := s.GetAllocation(ctx, id.NewAllocationID()); !errors.Is(err, errs.ErrAllocationNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func testPackages(t *testing.T, s store.Store) {
	ctx := context.Background()
	pkgs := []*purchase.Package{
		newPackage("pro", 2, true),
		newPackage("starter", 1, true),
		newPackage("legacy", 0, false),
	}
	for _, p := range pkgs {
		if err := s.CreatePackage(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreatePackage(ctx, newPackage("pro", 9, true)); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate code: err = %v", err)
	}

	got, err := s.GetPackageByCode(ctx, "starter")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != pkgs[1].ID || !got.Credits.Equal(d("1000")) || !got.Price.Equal(types.USD("9.99")) {
		t.Errorf("round trip = %+v", got)
	}

	active, err := s.ListPackages(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].Code != "starter" || active[1].Code != "pro" {
		t.Errorf("active packages = %+v", active)
	}

	got.Active = false
	if err := s.UpdatePackage(ctx, got); err != nil {
		t.Fatal(err)
	}
	all, err := s.ListPackages(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Code != "legacy" {
		t.Errorf("all packages = %+v", all)
	}
	if fresh, _ := s.GetPackage(ctx, got.ID); fresh == nil || fresh.Active {
		t.Errorf("update not persisted: %+v", fresh)
	}
	if _, err := s.GetPackageByCode(ctx, "missing"); !errors.Is(err, errs.ErrPackageNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func testPurchases(t *testing.T, s store.Store) {
	ctx := context.Background()
	pkg := newPackage("starter", 1, true)
	if err := s.CreatePackage(ctx, pkg); err != nil {
		t.Fatal(err)
	}

	first := purchase.New("acct", pkg)
	first.PaymentMethod = "card"
	first.Stamp(base)
	second := purchase.New("acct", pkg)
	second.Stamp(base.Add(time.Minute))
	for _, p := range []*purchase.Purchase{first, second} {
		if err := s.CreatePurchase(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetPurchase(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PackageCode != "starter" || !got.AmountPaid.Equal(types.USD("9.99")) || got.PaymentMethod != "card" {
		t.Errorf("round trip = %+v", got)
	}

	if err := got.Complete("gw-1", base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdatePurchase(ctx, got); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListPurchases(ctx, "acct", purchase.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("ListPurchases should be newest first: %+v", list)
	}
	completed, err := s.ListPurchases(ctx, "acct", purchase.ListOpts{Status: purchase.StatusCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 1 || completed[0].GatewayTransactionID != "gw-1" {
		t.Errorf("completed = %+v", completed)
	}
	if _, err := s.GetPurchase(ctx, id.NewPurchaseID()); !errors.Is(err, errs.ErrPurchaseNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func testEntries(t *testing.T, s store.Store) {
	ctx := context.Background()
	group := id.NewGroupID()
	reserve := newEntry("acct", txlog.TypeReserve, base)
	reserve.GroupID = group
	reserve.ReservationID = "job-1"
	confirm := newEntry("acct", txlog.TypeConfirm, base.Add(time.Minute))
	confirm.ReservationID = "job-1"
	purchased := newEntry("acct", txlog.TypePurchase, base.Add(2*time.Minute))
	purchased.PurchaseID = id.NewPurchaseID()
	elsewhere := newEntry("other", txlog.TypePurchase, base)

	if err := s.AppendEntries(ctx, []*txlog.Entry{reserve, confirm}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEntries(ctx, []*txlog.Entry{purchased, elsewhere}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		q    txlog.Query
		want []id.TransactionID
	}{
		{"account ascending", txlog.Query{AccountID: "acct"}, []id.TransactionID{reserve.ID, confirm.ID, purchased.ID}},
		{"account descending", txlog.Query{AccountID: "acct", Order: txlog.OrderDesc}, []id.TransactionID{purchased.ID, confirm.ID, reserve.ID}},
		{"types", txlog.Query{AccountID: "acct", Types: []txlog.Type{txlog.TypePurchase, txlog.TypeConfirm}}, []id.TransactionID{confirm.ID, purchased.ID}},
		{"reservation", txlog.Query{ReservationID: "job-1"}, []id.TransactionID{reserve.ID, confirm.ID}},
		{"time range", txlog.Query{AccountID: "acct", From: base.Add(time.Minute), To: base.Add(2 * time.Minute)}, []id.TransactionID{confirm.ID}},
		{"paging", txlog.Query{AccountID: "acct", Limit: 1, Offset: 1}, []id.TransactionID{confirm.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEntries(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("entry %d = %s (%s), want %s", i, got[i].ID, got[i].Type, tt.want[i])
				}
			}
		})
	}

	got, err := s.ListEntries(ctx, txlog.Query{ReservationID: "job-1", Types: []txlog.Type{txlog.TypeReserve}})
	if err != nil || len(got) != 1 {
		t.Fatalf("reserve entry: %v %v", got, err)
	}
	e := got[0]
	if e.GroupID != group || !e.Amount.Equal(d("10")) || !e.BalanceAfter.Equal(d("100")) || !e.ReservedAfter.Equal(d("10")) {
		t.Errorf("round trip = %+v", e)
	}
}

func testConcurrentUnits(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 16

	var g errgroup.Group
	for i := range workers {
		peer := fmt.Sprintf("peer-%02d", i)
		g.Go(func() error {
			for {
				err := s.Atomic(ctx, []string{peer, "shared"}, func(ctx context.Context, tx store.Tx) error {
					a, err := tx.GetAccount(ctx, "shared")
					if err != nil {
						return err
					}
					a.Current = a.Current.Add(decimal.NewFromInt(1))
					return tx.UpdateAccount(ctx, a)
				})
				if errs.IsRetryable(err) {
					continue
				}
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	a, err := s.GetAccount(ctx, "shared")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Current.Equal(decimal.NewFromInt(workers)) {
		t.Errorf("Current = %s, want %d", a.Current, workers)
	}
}

func testRejectsEmptyAccountID(t *testing.T, s store.Store) {
	err := s.Atomic(context.Background(), []string{""}, func(context.Context, store.Tx) error { return nil })
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func newReservation(key, accountID, amount string, expiresAt time.Time) *reservation.Reservation {
	r := &reservation.Reservation{
		ID:        key,
		AccountID: accountID,
		Amount:    d(amount),
		Status:    reservation.StatusReserved,
		ExpiresAt: expiresAt,
	}
	r.Stamp(base)
	return r
}

func newPackage(code string, order int, active bool) *purchase.Package {
	p := &purchase.Package{
		ID:           id.NewPackageID(),
		Code:         code,
		Name:         code,
		Credits:      d("1000"),
		Price:        types.USD("9.99"),
		Active:       active,
		DisplayOrder: order,
	}
	p.Stamp(base)
	return p
}

func newEntry(accountID string, typ txlog.Type, at time.Time) *txlog.Entry {
	return &txlog.Entry{
		ID:             id.NewTransactionID(),
		GroupID:        id.NewGroupID(),
		AccountID:      accountID,
		Type:           typ,
		Amount:         d("10"),
		BalanceBefore:  d("100"),
		BalanceAfter:   d("100"),
		ReservedBefore: d("0"),
		ReservedAfter:  d("10"),
		CreatedAt:      at,
	}
}

func reservationIDs(rs []*reservation.Reservation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

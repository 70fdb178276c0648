package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// staged holds the rows a unit has written but not yet committed.
type staged[T any] struct {
	rows    map[string]T
	created map[string]bool
}

func newStaged[T any]() staged[T] {
	return staged[T]{rows: make(map[string]T), created: make(map[string]bool)}
}

func (st staged[T]) put(key string, v T, created bool) {
	st.rows[key] = v
	if created {
		st.created[key] = true
	}
}

// tx is an overlay on the store. Reads see staged rows first; commit
// validates every staged row against the store before applying any.
type tx struct {
	s *Store

	accounts map[string]*account.Account
	// loaded is the version each account had when the unit locked it, or
	// -1 when the unit created the row.
	loaded map[string]int64

	reservations staged[*reservation.Reservation]
	allocations  staged[*allocation.Allocation]
	packages     staged[*purchase.Package]
	purchases    staged[*purchase.Purchase]
	entries      []*txlog.Entry
}

func (s *Store) begin(accountIDs []string) *tx {
	t := &tx{
		s:            s,
		accounts:     make(map[string]*account.Account, len(accountIDs)),
		loaded:       make(map[string]int64, len(accountIDs)),
		reservations: newStaged[*reservation.Reservation](),
		allocations:  newStaged[*allocation.Allocation](),
		packages:     newStaged[*purchase.Package](),
		purchases:    newStaged[*purchase.Purchase](),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, accountID := range accountIDs {
		if a, ok := s.accounts[accountID]; ok {
			t.accounts[accountID] = a.Clone()
			t.loaded[accountID] = a.Version
			continue
		}
		t.accounts[accountID] = account.New(accountID)
		t.loaded[accountID] = -1
	}
	return t
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (t *tx) GetAccount(_ context.Context, accountID string) (*account.Account, error) {
	if a, ok := t.accounts[accountID]; ok {
		return a.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if a, ok := t.s.accounts[accountID]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, accountID)
}

func (t *tx) UpdateAccount(_ context.Context, a *account.Account) error {
	current, ok := t.accounts[a.AccountID]
	if !ok {
		return errs.Invalid("update_account", a.AccountID, decimal.Zero, "account is not locked by this unit")
	}
	if current.Version != a.Version {
		return fmt.Errorf("%w: account %s version %d, have %d", errs.ErrConflict, a.AccountID, current.Version, a.Version)
	}
	next := a.Clone()
	next.Version++
	t.accounts[a.AccountID] = next
	a.Version = next.Version
	return nil
}

// ──────────────────────────────────────────────────
// Reservations
// ──────────────────────────────────────────────────

func (t *tx) CreateReservation(_ context.Context, r *reservation.Reservation) error {
	if _, ok := t.reservations.rows[r.ID]; ok {
		return fmt.Errorf("%w: reservation %s", errs.ErrAlreadyExists, r.ID)
	}
	if _, err := t.s.getReservation(r.ID); err == nil {
		return fmt.Errorf("%w: reservation %s", errs.ErrAlreadyExists, r.ID)
	}
	t.reservations.put(r.ID, r.Clone(), true)
	return nil
}

func (t *tx) GetReservation(_ context.Context, reservationID string) (*reservation.Reservation, error) {
	if r, ok := t.reservations.rows[reservationID]; ok {
		return r.Clone(), nil
	}
	return t.s.getReservation(reservationID)
}

func (t *tx) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	if _, err := t.GetReservation(ctx, r.ID); err != nil {
		return err
	}
	t.reservations.put(r.ID, r.Clone(), false)
	return nil
}

// ──────────────────────────────────────────────────
// Allocations
// ──────────────────────────────────────────────────

func (t *tx) CreateAllocation(_ context.Context, a *allocation.Allocation) error {
	key := a.ID.String()
	if _, ok := t.allocations.rows[key]; ok {
		return fmt.Errorf("%w: allocation %s", errs.ErrAlreadyExists, key)
	}
	if _, err := t.s.getAllocation(a.ID); err == nil {
		return fmt.Errorf("%w: allocation %s", errs.ErrAlreadyExists, key)
	}
	t.allocations.put(key, a.Clone(), true)
	return nil
}

func (t *tx) GetAllocation(_ context.Context, allocationID id.AllocationID) (*allocation.Allocation, error) {
	if a, ok := t.allocations.rows[allocationID.String()]; ok {
		return a.Clone(), nil
	}
	return t.s.getAllocation(allocationID)
}

func (t *tx) UpdateAllocation(ctx context.Context, a *allocation.Allocation) error {
	if _, err := t.GetAllocation(ctx, a.ID); err != nil {
		return err
	}
	t.allocations.put(a.ID.String(), a.Clone(), false)
	return nil
}

// ──────────────────────────────────────────────────
// Packages
// ──────────────────────────────────────────────────

func (t *tx) CreatePackage(ctx context.Context, p *purchase.Package) error {
	key := p.ID.String()
	if _, ok := t.packages.rows[key]; ok {
		return fmt.Errorf("%w: package %s", errs.ErrAlreadyExists, key)
	}
	if _, err := t.s.getPackage(p.ID); err == nil {
		return fmt.Errorf("%w: package %s", errs.ErrAlreadyExists, key)
	}
	if existing, err := t.GetPackageByCode(ctx, p.Code); err == nil && existing.ID != p.ID {
		return fmt.Errorf("%w: package code %s", errs.ErrAlreadyExists, p.Code)
	}
	c := *p
	t.packages.put(key, &c, true)
	return nil
}

func (t *tx) GetPackage(_ context.Context, packageID id.PackageID) (*purchase.Package, error) {
	if p, ok := t.packages.rows[packageID.String()]; ok {
		c := *p
		return &c, nil
	}
	return t.s.getPackage(packageID)
}

func (t *tx) GetPackageByCode(_ context.Context, code string) (*purchase.Package, error) {
	for _, p := range t.packages.rows {
		if p.Code == code {
			c := *p
			return &c, nil
		}
	}
	return t.s.getPackageByCode(code)
}

func (t *tx) UpdatePackage(ctx context.Context, p *purchase.Package) error {
	if _, err := t.GetPackage(ctx, p.ID); err != nil {
		return err
	}
	c := *p
	t.packages.put(p.ID.String(), &c, false)
	return nil
}

// ──────────────────────────────────────────────────
// Purchases
// ──────────────────────────────────────────────────

func (t *tx) CreatePurchase(_ context.Context, p *purchase.Purchase) error {
	key := p.ID.String()
	if _, ok := t.purchases.rows[key]; ok {
		return fmt.Errorf("%w: purchase %s", errs.ErrAlreadyExists, key)
	}
	if _, err := t.s.getPurchase(p.ID); err == nil {
		return fmt.Errorf("%w: purchase %s", errs.ErrAlreadyExists, key)
	}
	t.purchases.put(key, p.Clone(), true)
	return nil
}

func (t *tx) GetPurchase(_ context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	if p, ok := t.purchases.rows[purchaseID.String()]; ok {
		return p.Clone(), nil
	}
	return t.s.getPurchase(purchaseID)
}

func (t *tx) UpdatePurchase(ctx context.Context, p *purchase.Purchase) error {
	if _, err := t.GetPurchase(ctx, p.ID); err != nil {
		return err
	}
	t.purchases.put(p.ID.String(), p.Clone(), false)
	return nil
}

// ──────────────────────────────────────────────────
// Transaction log
// ──────────────────────────────────────────────────

func (t *tx) AppendEntries(_ context.Context, entries []*txlog.Entry) error {
	for _, e := range entries {
		c := *e
		t.entries = append(t.entries, &c)
	}
	return nil
}

// commit validates the overlay against the store and then applies it. A
// failed validation applies nothing.
func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.ErrStoreClosed
	}

	for accountID, version := range t.loaded {
		existing, ok := s.accounts[accountID]
		switch {
		case version < 0 && ok:
			return fmt.Errorf("%w: account %s created concurrently", errs.ErrConflict, accountID)
		case version >= 0 && (!ok || existing.Version != version):
			return fmt.Errorf("%w: account %s changed concurrently", errs.ErrConflict, accountID)
		}
	}
	for key := range t.reservations.created {
		if _, ok := s.reservations[key]; ok {
			return fmt.Errorf("%w: reservation %s", errs.ErrAlreadyExists, key)
		}
	}
	for key := range t.allocations.created {
		if _, ok := s.allocations[key]; ok {
			return fmt.Errorf("%w: allocation %s", errs.ErrAlreadyExists, key)
		}
	}
	for key := range t.purchases.created {
		if _, ok := s.purchases[key]; ok {
			return fmt.Errorf("%w: purchase %s", errs.ErrAlreadyExists, key)
		}
	}
	for key, p := range t.packages.rows {
		if _, ok := s.packages[key]; ok && t.packages.created[key] {
			return fmt.Errorf("%w: package %s", errs.ErrAlreadyExists, key)
		}
		for otherKey, other := range s.packages {
			if otherKey != key && other.Code == p.Code {
				return fmt.Errorf("%w: package code %s", errs.ErrAlreadyExists, p.Code)
			}
		}
	}

	for accountID, a := range t.accounts {
		s.accounts[accountID] = a
	}
	for key, r := range t.reservations.rows {
		s.reservations[key] = r
	}
	for key, a := range t.allocations.rows {
		s.allocations[key] = a
	}
	for key, p := range t.packages.rows {
		s.packages[key] = p
	}
	for key, p := range t.purchases.rows {
		s.purchases[key] = p
	}
	s.entries = append(s.entries, t.entries...)
	return nil
}

// Package memory is an in-process store.Store for tests and single-node
// development. Atomic units lock their accounts with per-account mutexes and
// stage writes in an overlay that is applied in one step on commit.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/txlog"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

type Store struct {
	mu     sync.RWMutex
	closed bool

	accounts     map[string]*account.Account
	reservations map[string]*reservation.Reservation
	allocations  map[string]*allocation.Allocation
	packages     map[string]*purchase.Package
	purchases    map[string]*purchase.Purchase
	entries      []*txlog.Entry

	locks *keyedLocks
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]*account.Account),
		reservations: make(map[string]*reservation.Reservation),
		allocations:  make(map[string]*allocation.Allocation),
		packages:     make(map[string]*purchase.Package),
		purchases:    make(map[string]*purchase.Purchase),
		entries:      make([]*txlog.Entry, 0),
		locks:        newKeyedLocks(),
	}
}

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, accountIDs []string, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	order, err := store.LockOrder(accountIDs)
	if err != nil {
		return err
	}

	for i, accountID := range order {
		if err := s.locks.lock(ctx, accountID); err != nil {
			for _, held := range order[:i] {
				s.locks.unlock(held)
			}
			return err
		}
	}
	defer func() {
		for _, accountID := range order {
			s.locks.unlock(accountID)
		}
	}()

	t := s.begin(order)
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

// single runs one write as its own unit.
func (s *Store) single(ctx context.Context, accountIDs []string, fn func(tx store.Tx) error) error {
	return s.Atomic(ctx, accountIDs, func(_ context.Context, tx store.Tx) error { return fn(tx) })
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, accountID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, accountID)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	return s.single(ctx, []string{a.AccountID}, func(tx store.Tx) error { return tx.UpdateAccount(ctx, a) })
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a.Clone())
	}
	slices.SortFunc(result, func(a, b *account.Account) int { return cmp.Compare(a.AccountID, b.AccountID) })
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Reservation Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.CreateReservation(ctx, r) })
}

func (s *Store) GetReservation(_ context.Context, reservationID string) (*reservation.Reservation, error) {
	return s.getReservation(reservationID)
}

func (s *Store) getReservation(reservationID string) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.reservations[reservationID]; ok {
		return r.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrReservationNotFound, reservationID)
}

func (s *Store) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.UpdateReservation(ctx, r) })
}

func (s *Store) ListReservations(_ context.Context, accountID string, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*reservation.Reservation, 0)
	for _, r := range s.reservations {
		if r.AccountID != accountID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result = append(result, r.Clone())
	}
	slices.SortFunc(result, func(a, b *reservation.Reservation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ListDueReservations(_ context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*reservation.Reservation, 0)
	for _, r := range s.reservations {
		if r.IsDue(now) {
			result = append(result, r.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *reservation.Reservation) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return page(result, limit, 0), nil
}

// ──────────────────────────────────────────────────
// Allocation Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateAllocation(ctx context.Context, a *allocation.Allocation) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.CreateAllocation(ctx, a) })
}

func (s *Store) GetAllocation(_ context.Context, allocationID id.AllocationID) (*allocation.Allocation, error) {
	return s.getAllocation(allocationID)
}

func (s *Store) getAllocation(allocationID id.AllocationID) (*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.allocations[allocationID.String()]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrAllocationNotFound, allocationID)
}

func (s *Store) UpdateAllocation(ctx context.Context, a *allocation.Allocation) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.UpdateAllocation(ctx, a) })
}

func (s *Store) ListAllocations(_ context.Context, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*allocation.Allocation, 0)
	for _, a := range s.allocations {
		if opts.FromAccountID != "" && a.FromAccountID != opts.FromAccountID {
			continue
		}
		if opts.ToAccountID != "" && a.ToAccountID != opts.ToAccountID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		result = append(result, a.Clone())
	}
	slices.SortFunc(result, func(a, b *allocation.Allocation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Package Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePackage(ctx context.Context, p *purchase.Package) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.CreatePackage(ctx, p) })
}

func (s *Store) GetPackage(_ context.Context, packageID id.PackageID) (*purchase.Package, error) {
	return s.getPackage(packageID)
}

func (s *Store) getPackage(packageID id.PackageID) (*purchase.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.packages[packageID.String()]; ok {
		c := *p
		return &c, nil
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrPackageNotFound, packageID)
}

func (s *Store) GetPackageByCode(_ context.Context, code string) (*purchase.Package, error) {
	return s.getPackageByCode(code)
}

func (s *Store) getPackageByCode(code string) (*purchase.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.packages {
		if p.Code == code {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrPackageNotFound, code)
}

func (s *Store) UpdatePackage(ctx context.Context, p *purchase.Package) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.UpdatePackage(ctx, p) })
}

func (s *Store) ListPackages(_ context.Context, activeOnly bool) ([]*purchase.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*purchase.Package, 0, len(s.packages))
	for _, p := range s.packages {
		if activeOnly && !p.Active {
			continue
		}
		c := *p
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *purchase.Package) int {
		if c := cmp.Compare(a.DisplayOrder, b.DisplayOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Purchase Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePurchase(ctx context.Context, p *purchase.Purchase) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.CreatePurchase(ctx, p) })
}

func (s *Store) GetPurchase(_ context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	return s.getPurchase(purchaseID)
}

func (s *Store) getPurchase(purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.purchases[purchaseID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", errs.ErrPurchaseNotFound, purchaseID)
}

func (s *Store) UpdatePurchase(ctx context.Context, p *purchase.Purchase) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.UpdatePurchase(ctx, p) })
}

func (s *Store) ListPurchases(_ context.Context, accountID string, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*purchase.Purchase, 0)
	for _, p := range s.purchases {
		if p.AccountID != accountID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, p.Clone())
	}
	slices.SortFunc(result, func(a, b *purchase.Purchase) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Transaction log implementation
// ──────────────────────────────────────────────────

func (s *Store) AppendEntries(ctx context.Context, entries []*txlog.Entry) error {
	return s.single(ctx, nil, func(tx store.Tx) error { return tx.AppendEntries(ctx, entries) })
}

func (s *Store) ListEntries(_ context.Context, q txlog.Query) ([]*txlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*txlog.Entry, 0)
	for _, e := range s.entries {
		if q.Matches(e) {
			c := *e
			result = append(result, &c)
		}
	}
	slices.SortStableFunc(result, func(a, b *txlog.Entry) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = cmp.Compare(a.Sequence, b.Sequence)
		}
		if c == 0 {
			c = cmp.Compare(a.ID.String(), b.ID.String())
		}
		if q.Order == txlog.OrderDesc {
			return -c
		}
		return c
	})
	return page(result, q.Limit, q.Offset), nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errs.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// page applies limit/offset; a zero limit means no limit.
func page[T any](rows []T, limit, offset int) []T {
	start := min(max(offset, 0), len(rows))
	end := len(rows)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return rows[start:end]
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// conn runs the credits queries against either the pool or an open unit.
type conn struct {
	q querier
	d *Dialect
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.d.rebind(query), args...)
	return res, c.d.translate(err)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.d.rebind(query), args...)
	return rows, c.d.translate(err)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// execOne runs an UPDATE and reports notFound when it matched no row.
func (c *conn) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (c *conn) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("credits/%s: %s: %w", c.d.Name, op, err)
}

// ==================== Account Store ====================

const accountColumns = `account_id, current_balance, reserved_balance, total_purchased, total_consumed,
	allocated_to_children, allocated_from_parent, version, created_at, updated_at`

func scanAccount(sc scanner) (*account.Account, error) {
	a := &account.Account{}
	err := sc.Scan(&a.AccountID, &a.Current, &a.Reserved, &a.TotalPurchased, &a.TotalConsumed,
		&a.AllocatedToChildren, &a.AllocatedFromParent, &a.Version,
		timeCol{&a.CreatedAt}, timeCol{&a.UpdatedAt})
	return a, err
}

// lockAccount creates the row if missing and holds it for the rest of the
// unit.
func (c *conn) lockAccount(ctx context.Context, accountID string) error {
	zero := c.d.ts(time.Time{})
	if _, err := c.exec(ctx,
		`INSERT INTO credit_accounts (account_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (account_id) DO NOTHING`, accountID, zero, zero); err != nil {
		return c.wrap("create account "+accountID, err)
	}
	var locked string
	err := c.queryRow(ctx, `SELECT account_id FROM credit_accounts WHERE account_id = ?`+c.d.LockSuffix, accountID).Scan(&locked)
	return c.wrap("lock account "+accountID, c.d.translate(err))
}

func (c *conn) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	a, err := scanAccount(c.queryRow(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE account_id = ?`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, c.wrap("get account", err)
	}
	return a, nil
}

func (c *conn) UpdateAccount(ctx context.Context, a *account.Account) error {
	err := c.execOne(ctx,
		fmt.Errorf("%w: account %s version %d", errs.ErrConflict, a.AccountID, a.Version),
		`UPDATE credit_accounts SET current_balance = ?, reserved_balance = ?, total_purchased = ?,
		 total_consumed = ?, allocated_to_children = ?, allocated_from_parent = ?,
		 version = version + 1, created_at = ?, updated_at = ?
		 WHERE account_id = ? AND version = ?`,
		a.Current, a.Reserved, a.TotalPurchased, a.TotalConsumed, a.AllocatedToChildren, a.AllocatedFromParent,
		c.d.ts(a.CreatedAt), c.d.ts(a.UpdatedAt), a.AccountID, a.Version)
	if err != nil {
		return err
	}
	a.Version++
	return nil
}

func (c *conn) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	clause, args := pageArgs(opts.Limit, opts.Offset)
	rows, err := c.query(ctx, `SELECT `+accountColumns+` FROM credit_accounts ORDER BY account_id`+clause, args...)
	if err != nil {
		return nil, c.wrap("list accounts", err)
	}
	return collect(rows, scanAccount)
}

// ==================== Reservation Store ====================

const reservationColumns = `reservation_id, account_id, amount, status, expires_at, reference_id, reference_type,
	allocation_id, notes, confirmed_at, released_at, expired_at, created_at, updated_at`

func scanReservation(sc scanner) (*reservation.Reservation, error) {
	r := &reservation.Reservation{}
	err := sc.Scan(&r.ID, &r.AccountID, &r.Amount, &r.Status, timeCol{&r.ExpiresAt}, &r.ReferenceID, &r.ReferenceType,
		&r.AllocationID, &r.Notes, nullTimeCol{&r.ConfirmedAt}, nullTimeCol{&r.ReleasedAt}, nullTimeCol{&r.ExpiredAt},
		timeCol{&r.CreatedAt}, timeCol{&r.UpdatedAt})
	return r, err
}

func (c *conn) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	_, err := c.exec(ctx, `INSERT INTO credit_reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, r.Amount, r.Status, c.d.ts(r.ExpiresAt), r.ReferenceID, r.ReferenceType,
		r.AllocationID, r.Notes, c.d.nullTS(r.ConfirmedAt), c.d.nullTS(r.ReleasedAt), c.d.nullTS(r.ExpiredAt),
		c.d.ts(r.CreatedAt), c.d.ts(r.UpdatedAt))
	return c.wrap("create reservation "+r.ID, err)
}

func (c *conn) GetReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	r, err := scanReservation(c.queryRow(ctx,
		`SELECT `+reservationColumns+` FROM credit_reservations WHERE reservation_id = ?`, reservationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errs.ErrReservationNotFound, reservationID)
	}
	if err != nil {
		return nil, c.wrap("get reservation", err)
	}
	return r, nil
}

func (c *conn) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	return c.execOne(ctx, fmt.Errorf("%w: %s", errs.ErrReservationNotFound, r.ID),
		`UPDATE credit_reservations SET status = ?, expires_at = ?, notes = ?, confirmed_at = ?,
		 released_at = ?, expired_at = ?, updated_at = ? WHERE reservation_id = ?`,
		r.Status, c.d.ts(r.ExpiresAt), r.Notes, c.d.nullTS(r.ConfirmedAt),
		c.d.nullTS(r.ReleasedAt), c.d.nullTS(r.ExpiredAt), c.d.ts(r.UpdatedAt), r.ID)
}

func (c *conn) ListReservations(ctx context.Context, accountID string, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM credit_reservations WHERE account_id = ?`
	args := []any{accountID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, opts.Status)
	}
	clause, pargs := pageArgs(opts.Limit, opts.Offset)
	rows, err := c.query(ctx, query+` ORDER BY created_at DESC, reservation_id DESC`+clause, append(args, pargs...)...)
	if err != nil {
		return nil, c.wrap("list reservations", err)
	}
	return collect(rows, scanReservation)
}

func (c *conn) ListDueReservations(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	clause, pargs := pageArgs(limit, 0)
	rows, err := c.query(ctx, `SELECT `+reservationColumns+` FROM credit_reservations
		WHERE status = ? AND expires_at < ? ORDER BY expires_at, reservation_id`+clause,
		append([]any{reservation.StatusReserved, c.d.ts(now)}, pargs...)...)
	if err != nil {
		return nil, c.wrap("list due reservations", err)
	}
	return collect(rows, scanReservation)
}

// ==================== Allocation Store ====================

const allocationColumns = `allocation_id, from_account_id, to_account_id, allocated_amount, remaining_amount,
	consumed_amount, returned_amount, status, notes, revoked_at, created_at, updated_at`

func scanAllocation(sc scanner) (*allocation.Allocation, error) {
	a := &allocation.Allocation{}
	err := sc.Scan(&a.ID, &a.FromAccountID, &a.ToAccountID, &a.Allocated, &a.Remaining,
		&a.Consumed, &a.Returned, &a.Status, &a.Notes, nullTimeCol{&a.RevokedAt},
		timeCol{&a.CreatedAt}, timeCol{&a.UpdatedAt})
	return a, err
}

func (c *conn) CreateAllocation(ctx context.Context, a *allocation.Allocation) error {
	_, err := c.exec(ctx, `INSERT INTO credit_allocations (`+allocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FromAccountID, a.ToAccountID, a.Allocated, a.Remaining,
		a.Consumed, a.Returned, a.Status, a.Notes, c.d.nullTS(a.RevokedAt),
		c.d.ts(a.CreatedAt), c.d.ts(a.UpdatedAt))
	return c.wrap("create allocation "+a.ID.String(), err)
}

func (c *conn) GetAllocation(ctx context.Context, allocationID id.AllocationID) (*allocation.Allocation, error) {
	a, err := scanAllocation(c.queryRow(ctx,
		`SELECT `+allocationColumns+` FROM credit_allocations WHERE allocation_id = ?`, allocationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errs.ErrAllocationNotFound, allocationID)
	}
	if err != nil {
		return nil, c.wrap("get allocation", err)
	}
	return a, nil
}

func (c *conn) UpdateAllocation(ctx context.Context, a *allocation.Allocation) error {
	return c.execOne(ctx, fmt.Errorf("%w: %s", errs.ErrAllocationNotFound, a.ID),
		`UPDATE credit_allocations SET remaining_amount = ?, consumed_amount = ?, returned_amount = ?,
		 status = ?, notes = ?, revoked_at = ?, updated_at = ? WHERE allocation_id = ?`,
		a.Remaining, a.Consumed, a.Returned, a.Status, a.Notes, c.d.nullTS(a.RevokedAt), c.d.ts(a.UpdatedAt), a.ID)
}

func (c *conn) ListAllocations(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM credit_allocations WHERE 1 = 1`
	var args []any
	if opts.FromAccountID != "" {
		query += ` AND from_account_id = ?`
		args = append(args, opts.FromAccountID)
	}
	if opts.ToAccountID != "" {
		query += ` AND to_account_id = ?`
		args = append(args, opts.ToAccountID)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, opts.Status)
	}
	clause, pargs := pageArgs(opts.Limit, opts.Offset)
	rows, err := c.query(ctx, query+` ORDER BY created_at, allocation_id`+clause, append(args, pargs...)...)
	if err != nil {
		return nil, c.wrap("list allocations", err)
	}
	return collect(rows, scanAllocation)
}

// ==================== Package Store ====================

const packageColumns = `package_id, code, name, description, credits, price_amount, price_currency,
	active, display_order, created_at, updated_at`

func scanPackage(sc scanner) (*purchase.Package, error) {
	p := &purchase.Package{}
	var (
		amount   decimal.Decimal
		currency string
	)
	err := sc.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Credits, &amount, &currency,
		&p.Active, &p.DisplayOrder, timeCol{&p.CreatedAt}, timeCol{&p.UpdatedAt})
	p.Price = types.NewMoney(amount, currency)
	return p, err
}

func (c *conn) CreatePackage(ctx context.Context, p *purchase.Package) error {
	_, err := c.exec(ctx, `INSERT INTO credit_packages (`+packageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Name, p.Description, p.Credits, p.Price.Amount, p.Price.Currency,
		p.Active, p.DisplayOrder, c.d.ts(p.CreatedAt), c.d.ts(p.UpdatedAt))
	return c.wrap("create package "+p.Code, err)
}

func (c *conn) GetPackage(ctx context.Context, packageID id.PackageID) (*purchase.Package, error) {
	return c.getPackage(ctx, `package_id = ?`, packageID, packageID.String())
}

func (c *conn) GetPackageByCode(ctx context.Context, code string) (*purchase.Package, error) {
	return c.getPackage(ctx, `code = ?`, code, code)
}

func (c *conn) getPackage(ctx context.Context, where string, arg any, label string) (*purchase.Package, error) {
	p, err := scanPackage(c.queryRow(ctx, `SELECT `+packageColumns+` FROM credit_packages WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errs.ErrPackageNotFound, label)
	}
	if err != nil {
		return nil, c.wrap("get package", err)
	}
	return p, nil
}

func (c *conn) UpdatePackage(ctx context.Context, p *purchase.Package) error {
	return c.execOne(ctx, fmt.Errorf("%w: %s", errs.ErrPackageNotFound, p.ID),
		`UPDATE credit_packages SET code = ?, name = ?, description = ?, credits = ?, price_amount = ?,
		 price_currency = ?, active = ?, display_order = ?, updated_at = ? WHERE package_id = ?`,
		p.Code, p.Name, p.Description, p.Credits, p.Price.Amount,
		p.Price.Currency, p.Active, p.DisplayOrder, c.d.ts(p.UpdatedAt), p.ID)
}

func (c *conn) ListPackages(ctx context.Context, activeOnly bool) ([]*purchase.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	rows, err := c.query(ctx, query+` ORDER BY display_order, code`, args...)
	if err != nil {
		return nil, c.wrap("list packages", err)
	}
	return collect(rows, scanPackage)
}

// ==================== Purchase Store ====================

const purchaseColumns = `purchase_id, account_id, package_id, package_code, credits, amount_paid, currency,
	payment_method, gateway_transaction_id, status, failure_reason, notes,
	completed_at, refunded_at, failed_at, created_at, updated_at`

func scanPurchase(sc scanner) (*purchase.Purchase, error) {
	p := &purchase.Purchase{}
	var (
		amount   decimal.Decimal
		currency string
	)
	err := sc.Scan(&p.ID, &p.AccountID, &p.PackageID, &p.PackageCode, &p.Credits, &amount, &currency,
		&p.PaymentMethod, &p.GatewayTransactionID, &p.Status, &p.FailureReason, &p.Notes,
		nullTimeCol{&p.CompletedAt}, nullTimeCol{&p.RefundedAt}, nullTimeCol{&p.FailedAt},
		timeCol{&p.CreatedAt}, timeCol{&p.UpdatedAt})
	p.AmountPaid = types.NewMoney(amount, currency)
	return p, err
}

func (c *conn) CreatePurchase(ctx context.Context, p *purchase.Purchase) error {
	_, err := c.exec(ctx, `INSERT INTO credit_purchases (`+purchaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AccountID, p.PackageID, p.PackageCode, p.Credits, p.AmountPaid.Amount, p.AmountPaid.Currency,
		p.PaymentMethod, p.GatewayTransactionID, p.Status, p.FailureReason, p.Notes,
		c.d.nullTS(p.CompletedAt), c.d.nullTS(p.RefundedAt), c.d.nullTS(p.FailedAt),
		c.d.ts(p.CreatedAt), c.d.ts(p.UpdatedAt))
	return c.wrap("create purchase "+p.ID.String(), err)
}

func (c *conn) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	p, err := scanPurchase(c.queryRow(ctx,
		`SELECT `+purchaseColumns+` FROM credit_purchases WHERE purchase_id = ?`, purchaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", errs.ErrPurchaseNotFound, purchaseID)
	}
	if err != nil {
		return nil, c.wrap("get purchase", err)
	}
	return p, nil
}

func (c *conn) UpdatePurchase(ctx context.Context, p *purchase.Purchase) error {
	return c.execOne(ctx, fmt.Errorf("%w: %s", errs.ErrPurchaseNotFound, p.ID),
		`UPDATE credit_purchases SET payment_method = ?, gateway_transaction_id = ?, status = ?,
		 failure_reason = ?, notes = ?, completed_at = ?, refunded_at = ?, failed_at = ?, updated_at = ?
		 WHERE purchase_id = ?`,
		p.PaymentMethod, p.GatewayTransactionID, p.Status,
		p.FailureReason, p.Notes, c.d.nullTS(p.CompletedAt), c.d.nullTS(p.RefundedAt), c.d.nullTS(p.FailedAt),
		c.d.ts(p.UpdatedAt), p.ID)
}

func (c *conn) ListPurchases(ctx context.Context, accountID string, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM credit_purchases WHERE account_id = ?`
	args := []any{accountID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, opts.Status)
	}
	clause, pargs := pageArgs(opts.Limit, opts.Offset)
	rows, err := c.query(ctx, query+` ORDER BY created_at DESC, purchase_id DESC`+clause, append(args, pargs...)...)
	if err != nil {
		return nil, c.wrap("list purchases", err)
	}
	return collect(rows, scanPurchase)
}

// ==================== Transaction Log ====================

const entryColumns = `transaction_id, group_id, account_id, sequence, transaction_type, amount,
	balance_before, balance_after, reserved_before, reserved_after, reservation_id,
	allocation_id, purchase_id, reference_id, reference_type, description, created_at`

func scanEntry(sc scanner) (*txlog.Entry, error) {
	e := &txlog.Entry{}
	err := sc.Scan(&e.ID, &e.GroupID, &e.AccountID, &e.Sequence, &e.Type, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.ReservedBefore, &e.ReservedAfter, &e.ReservationID,
		&e.AllocationID, &e.PurchaseID, &e.ReferenceID, &e.ReferenceType, &e.Description, timeCol{&e.CreatedAt})
	return e, err
}

func (c *conn) AppendEntries(ctx context.Context, entries []*txlog.Entry) error {
	for _, e := range entries {
		_, err := c.exec(ctx, `INSERT INTO credit_transactions (`+entryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.GroupID, e.AccountID, e.Sequence, e.Type, e.Amount,
			e.BalanceBefore, e.BalanceAfter, e.ReservedBefore, e.ReservedAfter, e.ReservationID,
			e.AllocationID, e.PurchaseID, e.ReferenceID, e.ReferenceType, e.Description, c.d.ts(e.CreatedAt))
		if err != nil {
			return c.wrap("append entry "+e.ID.String(), err)
		}
	}
	return nil
}

func (c *conn) ListEntries(ctx context.Context, q txlog.Query) ([]*txlog.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM credit_transactions WHERE 1 = 1`
	var args []any
	if q.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, q.AccountID)
	}
	if q.ReservationID != "" {
		query += ` AND reservation_id = ?`
		args = append(args, q.ReservationID)
	}
	if !q.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, c.d.ts(q.From))
	}
	if !q.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, c.d.ts(q.To))
	}
	if len(q.Types) > 0 {
		query += ` AND transaction_type IN (?` + strings.Repeat(", ?", len(q.Types)-1) + `)`
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	order := ` ORDER BY created_at, sequence, transaction_id`
	if q.Order == txlog.OrderDesc {
		order = ` ORDER BY created_at DESC, sequence DESC, transaction_id DESC`
	}
	clause, pargs := pageArgs(q.Limit, q.Offset)
	rows, err := c.query(ctx, query+order+clause, append(args, pargs...)...)
	if err != nil {
		return nil, c.wrap("list entries", err)
	}
	return collect(rows, scanEntry)
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

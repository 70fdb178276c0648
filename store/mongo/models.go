package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

// ==================== Account models ====================

type accountModel struct {
	ID                  string          `bson:"_id"`
	Current             bson.Decimal128 `bson:"current_balance"`
	Reserved            bson.Decimal128 `bson:"reserved_balance"`
	TotalPurchased      bson.Decimal128 `bson:"total_purchased"`
	TotalConsumed       bson.Decimal128 `bson:"total_consumed"`
	AllocatedToChildren bson.Decimal128 `bson:"allocated_to_children"`
	AllocatedFromParent bson.Decimal128 `bson:"allocated_from_parent"`
	Version             int64           `bson:"version"`
	CreatedAt           time.Time       `bson:"created_at"`
	UpdatedAt           time.Time       `bson:"updated_at"`
}

func toAccountModel(a *account.Account) (*accountModel, error) {
	var c codec
	m := &accountModel{
		ID:                  a.AccountID,
		Current:             c.enc(a.Current),
		Reserved:            c.enc(a.Reserved),
		TotalPurchased:      c.enc(a.TotalPurchased),
		TotalConsumed:       c.enc(a.TotalConsumed),
		AllocatedToChildren: c.enc(a.AllocatedToChildren),
		AllocatedFromParent: c.enc(a.AllocatedFromParent),
		Version:             a.Version,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	return m, c.err
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	var c codec
	a := &account.Account{
		Entity:              types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		AccountID:           m.ID,
		Current:             c.dec(m.Current),
		Reserved:            c.dec(m.Reserved),
		TotalPurchased:      c.dec(m.TotalPurchased),
		TotalConsumed:       c.dec(m.TotalConsumed),
		AllocatedToChildren: c.dec(m.AllocatedToChildren),
		AllocatedFromParent: c.dec(m.AllocatedFromParent),
		Version:             m.Version,
	}
	return a, c.err
}

// ==================== Reservation models ====================

type reservationModel struct {
	ID            string          `bson:"_id"`
	AccountID     string          `bson:"account_id"`
	Amount        bson.Decimal128 `bson:"amount"`
	Status        string          `bson:"status"`
	ExpiresAt     time.Time       `bson:"expires_at"`
	ReferenceID   string          `bson:"reference_id,omitempty"`
	ReferenceType string          `bson:"reference_type,omitempty"`
	AllocationID  string          `bson:"allocation_id,omitempty"`
	Notes         string          `bson:"notes,omitempty"`
	ConfirmedAt   *time.Time      `bson:"confirmed_at,omitempty"`
	ReleasedAt    *time.Time      `bson:"released_at,omitempty"`
	ExpiredAt     *time.Time      `bson:"expired_at,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

func toReservationModel(r *reservation.Reservation) (*reservationModel, error) {
	var c codec
	m := &reservationModel{
		ID:            r.ID,
		AccountID:     r.AccountID,
		Amount:        c.enc(r.Amount),
		Status:        string(r.Status),
		ExpiresAt:     r.ExpiresAt,
		ReferenceID:   r.ReferenceID,
		ReferenceType: r.ReferenceType,
		AllocationID:  r.AllocationID.String(),
		Notes:         r.Notes,
		ConfirmedAt:   r.ConfirmedAt,
		ReleasedAt:    r.ReleasedAt,
		ExpiredAt:     r.ExpiredAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	return m, c.err
}

func fromReservationModel(m *reservationModel) (*reservation.Reservation, error) {
	var c codec
	r := &reservation.Reservation{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            m.ID,
		AccountID:     m.AccountID,
		Amount:        c.dec(m.Amount),
		Status:        reservation.Status(m.Status),
		ExpiresAt:     m.ExpiresAt,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		AllocationID:  c.id(m.AllocationID),
		Notes:         m.Notes,
		ConfirmedAt:   m.ConfirmedAt,
		ReleasedAt:    m.ReleasedAt,
		ExpiredAt:     m.ExpiredAt,
	}
	return r, c.err
}

// ==================== Allocation models ====================

type allocationModel struct {
	ID            string          `bson:"_id"`
	FromAccountID string          `bson:"from_account_id"`
	ToAccountID   string          `bson:"to_account_id"`
	Allocated     bson.Decimal128 `bson:"allocated_amount"`
	Remaining     bson.Decimal128 `bson:"remaining_amount"`
	Consumed      bson.Decimal128 `bson:"consumed_amount"`
	Returned      bson.Decimal128 `bson:"returned_amount"`
	Status        string          `bson:"status"`
	Notes         string          `bson:"notes,omitempty"`
	RevokedAt     *time.Time      `bson:"revoked_at,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

func toAllocationModel(a *allocation.Allocation) (*allocationModel, error) {
	var c codec
	m := &allocationModel{
		ID:            a.ID.String(),
		FromAccountID: a.FromAccountID,
		ToAccountID:   a.ToAccountID,
		Allocated:     c.enc(a.Allocated),
		Remaining:     c.enc(a.Remaining),
		Consumed:      c.enc(a.Consumed),
		Returned:      c.enc(a.Returned),
		Status:        string(a.Status),
		Notes:         a.Notes,
		RevokedAt:     a.RevokedAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	return m, c.err
}

func fromAllocationModel(m *allocationModel) (*allocation.Allocation, error) {
	var c codec
	a := &allocation.Allocation{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            c.id(m.ID),
		FromAccountID: m.FromAccountID,
		ToAccountID:   m.ToAccountID,
		Allocated:     c.dec(m.Allocated),
		Remaining:     c.dec(m.Remaining),
		Consumed:      c.dec(m.Consumed),
		Returned:      c.dec(m.Returned),
		Status:        allocation.Status(m.Status),
		Notes:         m.Notes,
		RevokedAt:     m.RevokedAt,
	}
	return a, c.err
}

// ==================== Package models ====================

type packageModel struct {
	ID            string          `bson:"_id"`
	Code          string          `bson:"code"`
	Name          string          `bson:"name"`
	Description   string          `bson:"description,omitempty"`
	Credits       bson.Decimal128 `bson:"credits"`
	PriceAmount   bson.Decimal128 `bson:"price_amount"`
	PriceCurrency string          `bson:"price_currency"`
	Active        bool            `bson:"active"`
	DisplayOrder  int             `bson:"display_order"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

func toPackageModel(p *purchase.Package) (*packageModel, error) {
	var c codec
	m := &packageModel{
		ID:            p.ID.String(),
		Code:          p.Code,
		Name:          p.Name,
		Description:   p.Description,
		Credits:       c.enc(p.Credits),
		PriceAmount:   c.enc(p.Price.Amount),
		PriceCurrency: p.Price.Currency,
		Active:        p.Active,
		DisplayOrder:  p.DisplayOrder,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	return m, c.err
}

func fromPackageModel(m *packageModel) (*purchase.Package, error) {
	var c codec
	p := &purchase.Package{
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           c.id(m.ID),
		Code:         m.Code,
		Name:         m.Name,
		Description:  m.Description,
		Credits:      c.dec(m.Credits),
		Price:        types.NewMoney(c.dec(m.PriceAmount), m.PriceCurrency),
		Active:       m.Active,
		DisplayOrder: m.DisplayOrder,
	}
	return p, c.err
}

// ==================== Purchase models ====================

type purchaseModel struct {
	ID                   string          `bson:"_id"`
	AccountID            string          `bson:"account_id"`
	PackageID            string          `bson:"package_id"`
	PackageCode          string          `bson:"package_code"`
	Credits              bson.Decimal128 `bson:"credits"`
	AmountPaid           bson.Decimal128 `bson:"amount_paid"`
	Currency             string          `bson:"currency"`
	PaymentMethod        string          `bson:"payment_method,omitempty"`
	GatewayTransactionID string          `bson:"gateway_transaction_id,omitempty"`
	Status               string          `bson:"status"`
	FailureReason        string          `bson:"failure_reason,omitempty"`
	Notes                string          `bson:"notes,omitempty"`
	CompletedAt          *time.Time      `bson:"completed_at,omitempty"`
	RefundedAt           *time.Time      `bson:"refunded_at,omitempty"`
	FailedAt             *time.Time      `bson:"failed_at,omitempty"`
	CreatedAt            time.Time       `bson:"created_at"`
	UpdatedAt            time.Time       `bson:"updated_at"`
}

func toPurchaseModel(p *purchase.Purchase) (*purchaseModel, error) {
	var c codec
	m := &purchaseModel{
		ID:                   p.ID.String(),
		AccountID:            p.AccountID,
		PackageID:            p.PackageID.String(),
		PackageCode:          p.PackageCode,
		Credits:              c.enc(p.Credits),
		AmountPaid:           c.enc(p.AmountPaid.Amount),
		Currency:             p.AmountPaid.Currency,
		PaymentMethod:        p.PaymentMethod,
		GatewayTransactionID: p.GatewayTransactionID,
		Status:               string(p.Status),
		FailureReason:        p.FailureReason,
		Notes:                p.Notes,
		CompletedAt:          p.CompletedAt,
		RefundedAt:           p.RefundedAt,
		FailedAt:             p.FailedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	return m, c.err
}

func fromPurchaseModel(m *purchaseModel) (*purchase.Purchase, error) {
	var c codec
	p := &purchase.Purchase{
		Entity:               types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                   c.id(m.ID),
		AccountID:            m.AccountID,
		PackageID:            c.id(m.PackageID),
		PackageCode:          m.PackageCode,
		Credits:              c.dec(m.Credits),
		AmountPaid:           types.NewMoney(c.dec(m.AmountPaid), m.Currency),
		PaymentMethod:        m.PaymentMethod,
		GatewayTransactionID: m.GatewayTransactionID,
		Status:               purchase.Status(m.Status),
		FailureReason:        m.FailureReason,
		Notes:                m.Notes,
		CompletedAt:          m.CompletedAt,
		RefundedAt:           m.RefundedAt,
		FailedAt:             m.FailedAt,
	}
	return p, c.err
}

// ==================== Transaction log models ====================

type entryModel struct {
	ID             string          `bson:"_id"`
	GroupID        string          `bson:"group_id,omitempty"`
	AccountID      string          `bson:"account_id"`
	Sequence       int64           `bson:"sequence"`
	Type           string          `bson:"transaction_type"`
	Amount         bson.Decimal128 `bson:"amount"`
	BalanceBefore  bson.Decimal128 `bson:"balance_before"`
	BalanceAfter   bson.Decimal128 `bson:"balance_after"`
	ReservedBefore bson.Decimal128 `bson:"reserved_before"`
	ReservedAfter  bson.Decimal128 `bson:"reserved_after"`
	ReservationID  string          `bson:"reservation_id,omitempty"`
	AllocationID   string          `bson:"allocation_id,omitempty"`
	PurchaseID     string          `bson:"purchase_id,omitempty"`
	ReferenceID    string          `bson:"reference_id,omitempty"`
	ReferenceType  string          `bson:"reference_type,omitempty"`
	Description    string          `bson:"description,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
}

func toEntryModel(e *txlog.Entry) (*entryModel, error) {
	var c codec
	m := &entryModel{
		ID:             e.ID.String(),
		GroupID:        e.GroupID.String(),
		AccountID:      e.AccountID,
		Sequence:       e.Sequence,
		Type:           string(e.Type),
		Amount:         c.enc(e.Amount),
		BalanceBefore:  c.enc(e.BalanceBefore),
		BalanceAfter:   c.enc(e.BalanceAfter),
		ReservedBefore: c.enc(e.ReservedBefore),
		ReservedAfter:  c.enc(e.ReservedAfter),
		ReservationID:  e.ReservationID,
		AllocationID:   e.AllocationID.String(),
		PurchaseID:     e.PurchaseID.String(),
		ReferenceID:    e.ReferenceID,
		ReferenceType:  e.ReferenceType,
		Description:    e.Description,
		CreatedAt:      e.CreatedAt,
	}
	return m, c.err
}

func fromEntryModel(m *entryModel) (*txlog.Entry, error) {
	var c codec
	e := &txlog.Entry{
		ID:             c.id(m.ID),
		GroupID:        c.id(m.GroupID),
		AccountID:      m.AccountID,
		Sequence:       m.Sequence,
		Type:           txlog.Type(m.Type),
		Amount:         c.dec(m.Amount),
		BalanceBefore:  c.dec(m.BalanceBefore),
		BalanceAfter:   c.dec(m.BalanceAfter),
		ReservedBefore: c.dec(m.ReservedBefore),
		ReservedAfter:  c.dec(m.ReservedAfter),
		ReservationID:  m.ReservationID,
		AllocationID:   c.id(m.AllocationID),
		PurchaseID:     c.id(m.PurchaseID),
		ReferenceID:    m.ReferenceID,
		ReferenceType:  m.ReferenceType,
		Description:    m.Description,
		CreatedAt:      m.CreatedAt,
	}
	return e, c.err
}

// ==================== Helpers ====================

// codec converts field values and keeps the first failure, so a model
// conversion reports one error instead of checking every field.
type codec struct {
	err error
}

func (c *codec) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *codec) enc(d decimal.Decimal) bson.Decimal128 {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		c.fail(fmt.Errorf("encode decimal %s: %w", d, err))
	}
	return v
}

func (c *codec) dec(v bson.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		c.fail(fmt.Errorf("decode decimal %s: %w", v, err))
		return decimal.Zero
	}
	return d
}

func (c *codec) id(s string) id.ID {
	if s == "" {
		return id.Nil
	}
	v, err := id.Parse(s)
	if err != nil {
		c.fail(err)
	}
	return v
}

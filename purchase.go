package credits

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/txlog"
)

// PurchaseInput describes a purchase of one catalog package.
type PurchaseInput struct {
	AccountID     string
	PackageCode   string
	PaymentMethod string
	Notes         string
}

// InitiatePurchase records a PENDING purchase of an active package. No
// credits move until CompletePurchase.
func (l *Ledger) InitiatePurchase(ctx context.Context, in PurchaseInput) (*purchase.Purchase, error) {
	if in.AccountID == "" {
		return nil, errs.ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	if in.PackageCode == "" {
		return nil, errs.ValidationError{Field: "package_code", Message: "must not be empty"}
	}

	var out *purchase.Purchase
	err := l.atomic(ctx, "initiate_purchase", []string{in.AccountID}, func(ctx context.Context, u *unit) error {
		pkg, err := u.tx.GetPackageByCode(ctx, in.PackageCode)
		if err != nil {
			return err
		}
		if !pkg.Active {
			return errs.PackageInactive("initiate_purchase", in.AccountID, pkg.Credits,
				"package "+pkg.Code+" is not active")
		}

		p := purchase.New(in.AccountID, pkg)
		p.PaymentMethod = in.PaymentMethod
		p.Notes = in.Notes
		u.stamp(p)
		if err := u.tx.CreatePurchase(ctx, p); err != nil {
			return err
		}

		out = p
		u.on(func(ctx context.Context) { l.plugins.EmitPurchaseInitiated(ctx, p) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompletePurchase settles a PENDING purchase and credits the account.
func (l *Ledger) CompletePurchase(ctx context.Context, purchaseID id.PurchaseID, gatewayTransactionID string) (*purchase.Purchase, error) {
	return l.settlePurchase(ctx, "complete_purchase", purchaseID, func(ctx context.Context, u *unit, p *purchase.Purchase) error {
		if err := p.Complete(gatewayTransactionID, u.now); err != nil {
			return err
		}
		if _, err := u.apply(ctx, "complete_purchase", p.AccountID, account.Delta{
			Current:   p.Credits,
			Purchased: p.Credits,
		}, &txlog.Entry{
			Type:          txlog.TypePurchase,
			Amount:        p.Credits,
			PurchaseID:    p.ID,
			ReferenceID:   gatewayTransactionID,
			ReferenceType: "payment",
			Description:   "purchase package " + p.PackageCode,
		}); err != nil {
			return err
		}
		u.on(func(ctx context.Context) { l.plugins.EmitPurchaseCompleted(ctx, p) })
		return nil
	})
}

// RefundPurchase reverses a COMPLETED purchase. Credits that are on hold
// cannot be refunded, so it fails with ErrInsufficientFunds when the
// account's current balance less the purchased credits would drop below its
// reserved balance.
func (l *Ledger) RefundPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	return l.settlePurchase(ctx, "refund_purchase", purchaseID, func(ctx context.Context, u *unit, p *purchase.Purchase) error {
		if err := p.Refund(u.now); err != nil {
			return err
		}
		a, err := u.account(p.AccountID)
		if err != nil {
			return err
		}
		if a.Available().LessThan(p.Credits) {
			return errs.InsufficientFunds("refund_purchase", p.AccountID, p.Credits,
				"available balance "+a.Available().String()+" cannot give back the purchased credits")
		}
		if _, err := u.apply(ctx, "refund_purchase", p.AccountID, account.Delta{
			Current:   p.Credits.Neg(),
			Purchased: p.Credits.Neg(),
		}, &txlog.Entry{
			Type:          txlog.TypeRefund,
			Amount:        p.Credits,
			PurchaseID:    p.ID,
			ReferenceID:   p.GatewayTransactionID,
			ReferenceType: "payment",
			Description:   "refund package " + p.PackageCode,
		}); err != nil {
			return err
		}
		u.on(func(ctx context.Context) { l.plugins.EmitPurchaseRefunded(ctx, p) })
		return nil
	})
}

// FailPurchase marks a PENDING purchase FAILED. Balances are untouched and
// nothing is written to the transaction log.
func (l *Ledger) FailPurchase(ctx context.Context, purchaseID id.PurchaseID, reason string) (*purchase.Purchase, error) {
	p, err := l.settlePurchase(ctx, "fail_purchase", purchaseID, func(ctx context.Context, u *unit, p *purchase.Purchase) error {
		if err := p.Fail(reason, u.now); err != nil {
			return err
		}
		u.on(func(ctx context.Context) { l.plugins.EmitPurchaseFailed(ctx, p) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("purchase failed",
		"purchase_id", p.ID.String(),
		"account_id", p.AccountID,
		"package_code", p.PackageCode,
		"reason", reason,
	)
	return p, nil
}

func (l *Ledger) settlePurchase(ctx context.Context, op string, purchaseID id.PurchaseID,
	fn func(ctx context.Context, u *unit, p *purchase.Purchase) error,
) (*purchase.Purchase, error) {
	current, err := l.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	var out *purchase.Purchase
	err = l.atomic(ctx, op, []string{current.AccountID}, func(ctx context.Context, u *unit) error {
		p, err := u.tx.GetPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if err := fn(ctx, u, p); err != nil {
			return err
		}
		u.stamp(p)
		if err := u.tx.UpdatePurchase(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Package catalog
// ──────────────────────────────────────────────────

// CreatePackage adds a package to the catalog. Codes are unique.
func (l *Ledger) CreatePackage(ctx context.Context, pkg *purchase.Package) error {
	if pkg.ID.IsNil() {
		pkg.ID = id.NewPackageID()
	}
	if err := pkg.Validate(); err != nil {
		return err
	}
	pkg.Stamp(l.clock.Now().UTC())
	if err := l.store.CreatePackage(ctx, pkg); err != nil {
		return err
	}
	l.plugins.EmitPackageSaved(ctx, pkg)
	return nil
}

// GetPackage retrieves a package by its code.
func (l *Ledger) GetPackage(ctx context.Context, code string) (*purchase.Package, error) {
	return l.store.GetPackageByCode(ctx, code)
}

// GetPackageByID retrieves a package by ID.
func (l *Ledger) GetPackageByID(ctx context.Context, packageID id.PackageID) (*purchase.Package, error) {
	return l.store.GetPackage(ctx, packageID)
}

// ListPackages lists the catalog in display order.
func (l *Ledger) ListPackages(ctx context.Context, activeOnly bool) ([]*purchase.Package, error) {
	return l.store.ListPackages(ctx, activeOnly)
}

// UpdatePackage replaces a catalog package. Pending purchases keep the
// credits and price they were initiated with.
func (l *Ledger) UpdatePackage(ctx context.Context, pkg *purchase.Package) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	pkg.Stamp(l.clock.Now().UTC())
	if err := l.store.UpdatePackage(ctx, pkg); err != nil {
		return err
	}
	l.plugins.EmitPackageSaved(ctx, pkg)
	return nil
}

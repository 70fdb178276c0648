package purchase

import (
	"context"

	"github.com/xraph/credits/id"
)

// PackageStore persists the catalog. Codes are unique.
type PackageStore interface {
	CreatePackage(ctx context.Context, p *Package) error
	GetPackage(ctx context.Context, packageID id.PackageID) (*Package, error)
	GetPackageByCode(ctx context.Context, code string) (*Package, error)
	UpdatePackage(ctx context.Context, p *Package) error
	// ListPackages orders by DisplayOrder then Code.
	ListPackages(ctx context.Context, activeOnly bool) ([]*Package, error)
}

type Store interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*Purchase, error)
	UpdatePurchase(ctx context.Context, p *Purchase) error
}

type Lister interface {
	ListPurchases(ctx context.Context, accountID string, opts ListOpts) ([]*Purchase, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

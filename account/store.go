package account

import "context"

// Store persists account records.
//
// UpdateAccount is a compare-and-swap on Version: it fails with
// errs.ErrConflict when the stored version differs from a.Version, and
// increments a.Version on success.
type Store interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
}

// Lister is the read side used by reporting tools.
type Lister interface {
	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
}

// ListOpts pages through accounts ordered by account id.
type ListOpts struct {
	Limit  int
	Offset int
}

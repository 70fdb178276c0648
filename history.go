package credits

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/txlog"
)

// GetOrCreate returns the account's balance snapshot, creating an empty
// record on first use.
func (l *Ledger) GetOrCreate(ctx context.Context, accountID string) (*account.Account, error) {
	if accountID == "" {
		return nil, errs.ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	a, err := l.store.GetAccount(ctx, accountID)
	if err == nil {
		return a, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	var out *account.Account
	err = l.atomic(ctx, "get_or_create", []string{accountID}, func(_ context.Context, u *unit) error {
		a, err := u.account(accountID)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// History lists transaction log entries for one account. From is inclusive
// and To exclusive; zero bounds are open.
func (l *Ledger) History(ctx context.Context, q txlog.Query) ([]*txlog.Entry, error) {
	if q.AccountID == "" {
		return nil, errs.ValidationError{Field: "account_id", Message: "must not be empty"}
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, errs.ValidationError{Field: "to", Message: "must be after from"}
	}
	return l.store.ListEntries(ctx, q)
}

// Reconcile replays the account's transaction log and compares the result
// with the live record. The returned Replay lists every field that
// disagrees; an account no operation has touched reconciles clean.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) (*txlog.Replay, error) {
	if accountID == "" {
		return nil, errs.ValidationError{Field: "account_id", Message: "must not be empty"}
	}

	for attempt := 0; ; attempt++ {
		rep, stable, err := l.reconcileOnce(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if stable {
			l.plugins.EmitReconciled(ctx, rep)
			if !rep.Consistent() {
				l.logger.Warn("credits reconcile found discrepancies",
					"account_id", accountID,
					"discrepancies", len(rep.Discrepancies),
				)
			}
			return rep, nil
		}
		if attempt >= l.maxRetries || ctx.Err() != nil {
			return nil, errs.ErrConflict
		}
	}
}

// reconcileOnce reads the account, its log, and the account again. Every
// logged write bumps the account version, so an unchanged version means
// the log read matches the record.
func (l *Ledger) reconcileOnce(ctx context.Context, accountID string) (*txlog.Replay, bool, error) {
	before, err := l.store.GetAccount(ctx, accountID)
	if errs.IsNotFound(err) {
		before = account.New(accountID)
	} else if err != nil {
		return nil, false, err
	}

	entries, err := l.store.ListEntries(ctx, txlog.Query{AccountID: accountID})
	if err != nil {
		return nil, false, err
	}

	after, err := l.store.GetAccount(ctx, accountID)
	if errs.IsNotFound(err) {
		after = account.New(accountID)
	} else if err != nil {
		return nil, false, err
	}
	if after.Version != before.Version {
		return nil, false, nil
	}

	rep := txlog.ReplayEntries(accountID, entries)
	rep.Compare(after.Current, after.Reserved, after.TotalPurchased, after.TotalConsumed,
		after.AllocatedToChildren, after.AllocatedFromParent)
	return rep, true, nil
}

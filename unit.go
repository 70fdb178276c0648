package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

// unit is one atomic mutation. It holds the locked accounts as they stand
// inside the unit, collects the log entries it writes under one group id,
// and queues hooks that run only after the store commits.
type unit struct {
	tx       store.Tx
	now      time.Time
	group    id.GroupID
	order    []string
	accounts map[string]*account.Account
	entries  []*txlog.Entry
	after    []func(ctx context.Context)
}

// atomic runs fn as one unit over accountIDs. Units that lose a concurrent
// update race are retried from scratch up to maxRetries times. Hooks queued
// by fn run after commit; a rejected operation is reported to plugins.
func (l *Ledger) atomic(ctx context.Context, op string, accountIDs []string, fn func(ctx context.Context, u *unit) error) error {
	var (
		u   *unit
		err error
	)
	for attempt := 0; ; attempt++ {
		u = &unit{
			now:      l.clock.Now().UTC(),
			group:    id.NewGroupID(),
			order:    accountIDs,
			accounts: make(map[string]*account.Account, len(accountIDs)),
		}
		err = l.store.Atomic(ctx, accountIDs, func(ctx context.Context, tx store.Tx) error {
			u.tx = tx
			if err := u.load(ctx); err != nil {
				return err
			}
			if err := fn(ctx, u); err != nil {
				return err
			}
			return u.finish(ctx)
		})
		if err == nil || !errs.IsRetryable(err) || attempt >= l.maxRetries || ctx.Err() != nil {
			break
		}
		l.logger.Debug("retrying credits unit",
			"op", op,
			"attempt", attempt+1,
			"error", err,
		)
	}

	if err != nil {
		var opErr *errs.Error
		if errors.As(err, &opErr) {
			l.plugins.EmitOperationRejected(ctx, op, accountIDs, err)
		}
		return err
	}

	if len(u.entries) > 0 {
		l.plugins.EmitEntriesAppended(ctx, u.entries)
	}
	for _, f := range u.after {
		f(ctx)
	}
	return nil
}

func (u *unit) load(ctx context.Context) error {
	for _, accountID := range u.order {
		a, err := u.tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		u.accounts[accountID] = a
	}
	return nil
}

// account returns accountID as it stands in the unit.
func (u *unit) account(accountID string) (*account.Account, error) {
	a, ok := u.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("credits: account %s is not locked by this unit", accountID)
	}
	return a, nil
}

// apply is the single write path for balances: it moves accountID by d
// through account.Apply, persists the result and records e with the
// before and after snapshots.
func (u *unit) apply(ctx context.Context, op, accountID string, d account.Delta, e *txlog.Entry) (*account.Account, error) {
	a, err := u.account(accountID)
	if err != nil {
		return nil, err
	}
	next, err := a.Apply(op, e.Amount, d)
	if err != nil {
		return nil, err
	}
	next.Stamp(u.now)
	if err := u.tx.UpdateAccount(ctx, next); err != nil {
		return nil, err
	}
	u.accounts[accountID] = next

	e.ID = id.NewTransactionID()
	e.GroupID = u.group
	e.AccountID = accountID
	e.Sequence = next.Version
	e.BalanceBefore, e.BalanceAfter = a.Current, next.Current
	e.ReservedBefore, e.ReservedAfter = a.Reserved, next.Reserved
	e.Stamp(u.now)
	u.entries = append(u.entries, e)
	return next, nil
}

// stamp sets the timestamps of a record the unit is about to write.
func (u *unit) stamp(e types.Stamper) { e.Stamp(u.now) }

// on queues a hook for after commit.
func (u *unit) on(f func(ctx context.Context)) { u.after = append(u.after, f) }

// finish stamps accounts the unit created without moving their balances
// and appends the collected entries.
func (u *unit) finish(ctx context.Context) error {
	for _, accountID := range u.order {
		a := u.accounts[accountID]
		if a == nil || !a.CreatedAt.IsZero() {
			continue
		}
		a.Stamp(u.now)
		if err := u.tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
	}
	if len(u.entries) == 0 {
		return nil
	}
	return u.tx.AppendEntries(ctx, u.entries)
}

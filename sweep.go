package credits

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/credits/errs"
)

// Lease guards the expiry sweep when several ledger instances share a
// store. TryAcquire reports whether this instance holds the lease now.
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ExpireDue reclaims every RESERVED hold whose expiry has passed and
// reports how many were expired. Each hold is expired in its own unit; a
// hold that a concurrent confirm or release already settled is skipped, and
// any other failure is logged and skipped.
func (l *Ledger) ExpireDue(ctx context.Context) (int, error) {
	start := time.Now()
	expired := 0
	skipped := make(map[string]struct{})

	for {
		// Skipped holds are still due and sort ahead of later ones, so
		// widen the page by their count to reach the holds behind them.
		limit := l.sweepBatchSize + len(skipped)
		due, err := l.store.ListDueReservations(ctx, l.clock.Now().UTC(), limit)
		if err != nil {
			return expired, err
		}

		attempted := 0
		for _, r := range due {
			if _, seen := skipped[r.ID]; seen {
				continue
			}
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			attempted++
			_, err := l.expire(ctx, r.ID)
			switch {
			case err == nil:
				expired++
			case errors.Is(err, errs.ErrInvalidState):
				skipped[r.ID] = struct{}{}
			default:
				skipped[r.ID] = struct{}{}
				l.logger.Warn("failed to expire reservation",
					"reservation_id", r.ID,
					"account_id", r.AccountID,
					"error", err,
				)
			}
		}

		if len(due) < limit || attempted == 0 {
			break
		}
	}

	elapsed := time.Since(start)
	l.plugins.EmitSweepCompleted(ctx, expired, elapsed)
	if expired > 0 {
		l.logger.Info("expired reservations",
			"count", expired,
			"elapsed", elapsed,
		)
	}
	return expired, nil
}

// sweepWorker runs ExpireDue every sweepInterval until Stop.
func (l *Ledger) sweepWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(ctx)
		case <-l.stopChan:
			l.releaseLease()
			return
		case <-ctx.Done():
			l.releaseLease()
			return
		}
	}
}

func (l *Ledger) sweep(ctx context.Context) {
	if l.sweepLease != nil {
		held, err := l.sweepLease.TryAcquire(ctx)
		if err != nil {
			l.logger.Warn("sweep lease unavailable", "error", err)
			return
		}
		if !held {
			return
		}
	}
	if _, err := l.ExpireDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Error("expiry sweep failed", "error", err)
	}
}

func (l *Ledger) releaseLease() {
	if l.sweepLease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sweepLease.Release(ctx); err != nil {
		l.logger.Warn("failed to release sweep lease", "error", err)
	}
}

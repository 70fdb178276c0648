// Package sqlstore implements store.Store over database/sql. The postgres
// and sqlite packages wrap it with their driver and Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xraph/credits/store"
)

// compile-time interface check
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*conn)(nil)
)

// Store implements store.Store. Outside Atomic every method runs on the
// pool; inside a unit the same queries run on the unit's *sql.Tx.
type Store struct {
	*conn
	db *sql.DB
}

// New wraps an open database.
func New(db *sql.DB, d *Dialect) *Store {
	return &Store{conn: &conn{q: db, d: d}, db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Atomic implements store.Store. Account rows are upserted and then locked
// with the dialect's row lock in ascending id order.
func (s *Store) Atomic(ctx context.Context, accountIDs []string, fn func(ctx context.Context, tx store.Tx) error) error {
	order, err := store.LockOrder(accountIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("credits/%s: begin: %w", s.d.Name, s.d.translate(err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	unit := &conn{q: tx, d: s.d}
	for _, accountID := range order {
		if err := unit.lockAccount(ctx, accountID); err != nil {
			return err
		}
	}
	if err := fn(ctx, unit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("credits/%s: commit: %w", s.d.Name, s.d.translate(err))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

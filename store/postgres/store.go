// Package postgres is the PostgreSQL store.Store, built on database/sql and
// github.com/lib/pq. Units lock account rows with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/store/sqlstore"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	*sqlstore.Store
}

// Dialect is the PostgreSQL flavour of the shared SQL.
var Dialect = &sqlstore.Dialect{
	Name:        "postgres",
	Numbered:    true,
	LockSuffix:  " FOR UPDATE",
	DecimalType: "NUMERIC",
	TimeType:    "TIMESTAMPTZ",
	BoolType:    "BOOLEAN",
	Translate:   translate,
}

// New wraps an open *sql.DB using the "postgres" driver.
func New(db *sql.DB) *Store {
	return &Store{Store: sqlstore.New(db, Dialect)}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credits/postgres: ping: %w", err)
	}
	return New(db), nil
}

// SQLSTATE codes mapped onto the errs taxonomy.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", errs.ErrAlreadyExists, pqErr.Message)
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %s", errs.ErrConflict, pqErr.Message)
	default:
		return err
	}
}

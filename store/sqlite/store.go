// Package sqlite is the SQLite store.Store, built on database/sql and the
// pure-Go modernc.org/sqlite driver. SQLite has no row locks, so every unit
// starts with BEGIN IMMEDIATE and holds the database write lock instead.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/store/sqlstore"
)

// Store implements store.Store using SQLite.
type Store struct {
	*sqlstore.Store
}

// Dialect is the SQLite flavour of the shared SQL. Decimals are stored as
// TEXT so no precision is lost, timestamps as unix microseconds.
var Dialect = &sqlstore.Dialect{
	Name:        "sqlite",
	DecimalType: "TEXT",
	TimeType:    "INTEGER",
	BoolType:    "INTEGER",
	TimeArg:     sqlstore.UnixMicro,
	Translate:   translate,
}

// New wraps an open *sql.DB using the "sqlite" driver. The pool is limited
// to one connection so in-memory databases are shared and units serialize.
func New(db *sql.DB) *Store {
	db.SetMaxOpenConns(1)
	return &Store{Store: sqlstore.New(db, Dialect)}
}

// Open opens the database at path (":memory:" for a private in-memory
// database) with immediate transactions and a busy timeout.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("credits/sqlite: storage path is required")
	}
	dsn := path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("credits/sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credits/sqlite: ping: %w", err)
	}
	return New(db), nil
}

func translate(err error) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %s", errs.ErrAlreadyExists, sqliteErr.Error())
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return fmt.Errorf("%w: %s", errs.ErrConflict, sqliteErr.Error())
	default:
		return err
	}
}

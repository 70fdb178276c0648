package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Migration is one forward-only schema step. Statements may use the
// {{decimal}}, {{time}} and {{bool}} column type placeholders.
type Migration struct {
	Version    string
	Name       string
	Statements []string
}

// Migrations is the credits schema in apply order.
var Migrations = []Migration{
	{
		Version: "20260301000001",
		Name:    "create_credit_accounts",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credit_accounts (
    account_id            TEXT PRIMARY KEY,
    current_balance       {{decimal}} NOT NULL DEFAULT 0,
    reserved_balance      {{decimal}} NOT NULL DEFAULT 0,
    total_purchased       {{decimal}} NOT NULL DEFAULT 0,
    total_consumed        {{decimal}} NOT NULL DEFAULT 0,
    allocated_to_children {{decimal}} NOT NULL DEFAULT 0,
    allocated_from_parent {{decimal}} NOT NULL DEFAULT 0,
    version               BIGINT NOT NULL DEFAULT 0,
    created_at            {{time}} NOT NULL,
    updated_at            {{time}} NOT NULL
)`},
	},
	{
		Version: "20260301000002",
		Name:    "create_credit_reservations",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credit_reservations (
    reservation_id TEXT PRIMARY KEY,
    account_id     TEXT NOT NULL,
    amount         {{decimal}} NOT NULL,
    status         TEXT NOT NULL,
    expires_at     {{time}} NOT NULL,
    reference_id   TEXT NOT NULL DEFAULT '',
    reference_type TEXT NOT NULL DEFAULT '',
    allocation_id  TEXT,
    notes          TEXT NOT NULL DEFAULT '',
    confirmed_at   {{time}},
    released_at    {{time}},
    expired_at     {{time}},
    created_at     {{time}} NOT NULL,
    updated_at     {{time}} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_reservations_due ON credit_reservations (status, expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_reservations_account ON credit_reservations (account_id, created_at)`,
		},
	},
	{
		Version: "20260301000003",
		Name:    "create_credit_allocations",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credit_allocations (
    allocation_id    TEXT PRIMARY KEY,
    from_account_id  TEXT NOT NULL,
    to_account_id    TEXT NOT NULL,
    allocated_amount {{decimal}} NOT NULL,
    remaining_amount {{decimal}} NOT NULL,
    consumed_amount  {{decimal}} NOT NULL DEFAULT 0,
    returned_amount  {{decimal}} NOT NULL DEFAULT 0,
    status           TEXT NOT NULL,
    notes            TEXT NOT NULL DEFAULT '',
    revoked_at       {{time}},
    created_at       {{time}} NOT NULL,
    updated_at       {{time}} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_allocations_from ON credit_allocations (from_account_id, status)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_allocations_to ON credit_allocations (to_account_id, status)`,
		},
	},
	{
		Version: "20260301000004",
		Name:    "create_credit_packages",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credit_packages (
    package_id     TEXT PRIMARY KEY,
    code           TEXT NOT NULL,
    name           TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    credits        {{decimal}} NOT NULL,
    price_amount   {{decimal}} NOT NULL,
    price_currency TEXT NOT NULL,
    active         {{bool}} NOT NULL,
    display_order  INTEGER NOT NULL DEFAULT 0,
    created_at     {{time}} NOT NULL,
    updated_at     {{time}} NOT NULL
)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_packages_code ON credit_packages (code)`,
		},
	},
	{
		Version: "20260301000005",
		Name:    "create_credit_purchases",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credit_purchases (
    purchase_id            TEXT PRIMARY KEY,
    account_id             TEXT NOT NULL,
    package_id             TEXT NOT NULL,
    package_code           TEXT NOT NULL,
    credits                {{decimal}} NOT NULL,
    amount_paid            {{decimal}} NOT NULL,
    currency               TEXT NOT NULL,
    payment_method         TEXT NOT NULL DEFAULT '',
    gateway_transaction_id TEXT NOT NULL DEFAULT '',
    status                 TEXT NOT NULL,
    failure_reason         TEXT NOT NULL DEFAULT '',
    notes                  TEXT NOT NULL DEFAULT '',
    completed_at           {{time}},
    refunded_at            {{time}},
    failed_at              {{time}},
    created_at             {{time}} NOT NULL,
    updated_at             {{time}} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_purchases_account ON credit_purchases (account_id, created_at)`,
		},
	},
	{
		Version: "20260301000006",
		Name:    "create_credit_transactions",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credit_transactions (
    transaction_id   TEXT PRIMARY KEY,
    group_id         TEXT,
    account_id       TEXT NOT NULL,
    sequence         BIGINT NOT NULL DEFAULT 0,
    transaction_type TEXT NOT NULL,
    amount           {{decimal}} NOT NULL,
    balance_before   {{decimal}} NOT NULL,
    balance_after    {{decimal}} NOT NULL,
    reserved_before  {{decimal}} NOT NULL,
    reserved_after   {{decimal}} NOT NULL,
    reservation_id   TEXT NOT NULL DEFAULT '',
    allocation_id    TEXT,
    purchase_id      TEXT,
    reference_id     TEXT NOT NULL DEFAULT '',
    reference_type   TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    created_at       {{time}} NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_account ON credit_transactions (account_id, sequence)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_reservation ON credit_transactions (reservation_id)`,
		},
	},
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS credit_schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`

// Migrate applies every migration not yet recorded, each in its own
// transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("credits/%s: create migrations table: %w", s.d.Name, err)
	}

	expand := strings.NewReplacer(
		"{{decimal}}", s.d.DecimalType,
		"{{time}}", s.d.TimeType,
		"{{bool}}", s.d.BoolType,
	)

	for _, m := range Migrations {
		var applied string
		err := s.db.QueryRowContext(ctx,
			s.d.rebind(`SELECT version FROM credit_schema_migrations WHERE version = ?`), m.Version).Scan(&applied)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("credits/%s: check migration %s: %w", s.d.Name, m.Name, err)
		}

		if err := s.apply(ctx, m, expand); err != nil {
			return fmt.Errorf("credits/%s: migration %s failed: %w", s.d.Name, m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m Migration, expand *strings.Replacer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, expand.Replace(stmt)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		s.d.rebind(`INSERT INTO credit_schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

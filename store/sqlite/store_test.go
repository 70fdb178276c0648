package sqlite_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/store/storetest"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return open(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := open(t)
	defer s.Close()

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM credit_schema_migrations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("recorded %d migrations, want 6", n)
	}
}

func TestDecimalsKeepFullPrecision(t *testing.T) {
	s := open(t)
	defer s.Close()
	ctx := context.Background()
	amount := decimal.RequireFromString("12345678901234567890.0000000001")

	err := s.Atomic(ctx, []string{"acct"}, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAccount(ctx, "acct")
		if err != nil {
			return err
		}
		a.Current = amount
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := s.GetAccount(ctx, "acct")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Current.Equal(amount) {
		t.Errorf("Current = %s, want %s", a.Current, amount)
	}
}

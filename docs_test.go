package credits_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		l := credits.New(store,
			credits.WithLogger(slog.Default()),
			credits.WithDefaultTTL(10*time.Minute),
			credits.WithSweepInterval(0),
		)

		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		// Stock the catalog and sell a package
		if err := l.CreatePackage(ctx, &purchase.Package{
			Code:    "starter",
			Name:    "Starter",
			Credits: credits.Credits(1000),
			Price:   credits.USD("9.99"),
			Active:  true,
		}); err != nil {
			t.Fatal(err)
		}
		p, err := l.InitiatePurchase(ctx, credits.PurchaseInput{AccountID: "acct_42", PackageCode: "starter"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.CompletePurchase(ctx, p.ID, "ch_123"); err != nil {
			t.Fatal(err)
		}

		// Hold, then spend
		r, err := l.Reserve(ctx, credits.ReserveInput{
			AccountID:     "acct_42",
			ReservationID: "req_1",
			Amount:        credits.Credits(200),
			ReferenceType: "report",
		})
		if errors.Is(err, credits.ErrInsufficientFunds) {
			t.Fatal("starter package should cover the report")
		}
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.Confirm(ctx, r.ID); err != nil {
			t.Fatal(err)
		}

		acct, err := l.GetOrCreate(ctx, "acct_42")
		if err != nil {
			t.Fatal(err)
		}
		if !acct.Available().Equal(credits.Credits(800)) {
			t.Errorf("available = %s, want 800", acct.Available())
		}

		entries, err := l.History(ctx, txlog.Query{AccountID: "acct_42"})
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 3 {
			t.Errorf("history = %d entries, want 3", len(entries))
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD("49.00")          // $49.00
		_ = types.EUR("99.00")          // €99.00
		_ = types.Zero("USD")           // $0.00
		_ = credits.MustCredits("12.5") // 12.5 credits

		// Comparison ignores scale
		m1 := types.USD("1.00")
		if !m1.Equal(types.USD("1")) {
			t.Error("1.00 != 1")
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}

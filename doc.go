// Package credits provides a credit ledger engine for Go applications.
//
// Credits is designed as a library, not a service. Import it directly into
// your Go application; it tracks a prepaid balance per external account and
// lets callers hold, spend, grant and buy credits against it:
//
//   - Reservations put credit on hold for an in-flight operation and are
//     later confirmed as spent, released, or expired by a background sweep
//   - Allocations grant part of a parent account's balance to a child
//   - Purchases of catalog packages add credits once payment settles
//   - Every balance change appends to an immutable transaction log that can
//     be replayed to reconcile the live balances
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create ledger
//	l := credits.New(store)
//
//	// Start the ledger (migrates and begins the expiry sweep)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// A reservation holds credit until the work it pays for is done:
//
//	r, err := l.Reserve(ctx, credits.ReserveInput{
//	    AccountID:     "acct_42",
//	    ReservationID: requestID, // idempotency key
//	    Amount:        credits.Credits(200),
//	    ReferenceType: "report",
//	})
//	if errors.Is(err, credits.ErrInsufficientFunds) {
//	    // reject the request
//	}
//
//	// ... do the work ...
//	_, err = l.Confirm(ctx, r.ID)
//
// Reads never need a lock:
//
//	acct, err := l.GetOrCreate(ctx, "acct_42")
//	fmt.Println(acct.Current, acct.Reserved, acct.Available())
//
// # Consistency
//
// Each operation runs as one atomic unit: the account records it touches
// are locked in ascending account-id order, balances change through a
// single arithmetic primitive that refuses to drive any field negative or
// reserved above current, and the matching log entries are appended in the
// same unit. Plugins are notified only after the unit commits.
//
// All amounts are shopspring/decimal values; no floating-point arithmetic
// is used anywhere on the balance path.
//
// # TypeID
//
// Allocations, packages, purchases and log entries use TypeID for globally
// unique, type-safe identifiers:
//
//	alloc_01h2xcejqtf2nbrexx3vqjhp41  // Allocation ID
//	pur_01h2xcejqtf2nbrexx3vqjhp41    // Purchase ID
//	ctxn_01h455vb4pex5vsknk084sn02q   // Transaction log entry ID
//
// Reservation ids are caller-supplied idempotency keys; generated keys use
// the rsv prefix.
package credits

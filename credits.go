package credits

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// Defaults used by New.
const (
	DefaultReservationTTL = 15 * time.Minute
	DefaultSweepInterval  = time.Minute
	DefaultSweepBatchSize = 100
	DefaultMaxRetries     = 3
)

// Ledger is the credit ledger engine. Every balance change goes through one
// atomic unit that updates the account record and appends the matching log
// entries together.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   types.Clock
	pricing pricing.Resolver

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	defaultTTL     time.Duration
	sweepInterval  time.Duration
	sweepBatchSize int
	sweepLease     Lease
	maxRetries     int
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          types.SystemClock{},
		stopChan:       make(chan struct{}),
		defaultTTL:     DefaultReservationTTL,
		sweepInterval:  DefaultSweepInterval,
		sweepBatchSize: DefaultSweepBatchSize,
		maxRetries:     DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c types.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithDefaultTTL sets the hold lifetime used when Reserve gets a zero TTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.defaultTTL = ttl
		}
	}
}

// WithSweepInterval sets how often Start's worker runs ExpireDue. Zero
// disables the worker.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.sweepInterval = d
	}
}

// WithSweepBatchSize caps how many due reservations one sweep pass loads.
func WithSweepBatchSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.sweepBatchSize = n
		}
	}
}

// WithSweepLease makes the sweep worker run only while it holds lease, so
// one instance in a fleet sweeps at a time.
func WithSweepLease(lease Lease) Option {
	return func(l *Ledger) {
		l.sweepLease = lease
	}
}

// WithPricing sets the resolver used by ReserveForOperation.
func WithPricing(r pricing.Resolver) Option {
	return func(l *Ledger) {
		l.pricing = r
	}
}

// WithMaxRetries sets how many times a unit that lost a concurrent update
// race is retried before ErrConflict is returned.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// Start migrates the store, initializes plugins and begins the expiry
// sweep worker.
func (l *Ledger) Start(ctx context.Context) error {
	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	if l.sweepInterval > 0 {
		l.wg.Add(1)
		go l.sweepWorker(ctx)
	}

	l.logger.Info("credits started",
		"default_ttl", l.defaultTTL,
		"sweep_interval", l.sweepInterval,
		"sweep_batch_size", l.sweepBatchSize,
		"sweep_lease", l.sweepLease != nil,
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Account returns the ledger record of accountID, or ErrAccountNotFound if
// no credit-affecting operation has touched it yet.
func (l *Ledger) Account(ctx context.Context, accountID string) (*account.Account, error) {
	return l.store.GetAccount(ctx, accountID)
}

// ListAccounts pages through ledger records by account id.
func (l *Ledger) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return l.store.ListAccounts(ctx, opts)
}

// GetReservation retrieves a reservation by its id.
func (l *Ledger) GetReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return l.store.GetReservation(ctx, reservationID)
}

// ListReservations lists an account's reservations, newest first.
func (l *Ledger) ListReservations(ctx context.Context, accountID string, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	return l.store.ListReservations(ctx, accountID, opts)
}

// GetAllocation retrieves an allocation by ID.
func (l *Ledger) GetAllocation(ctx context.Context, allocationID id.AllocationID) (*allocation.Allocation, error) {
	return l.store.GetAllocation(ctx, allocationID)
}

// ListAllocations lists allocations by parent, child or status.
func (l *Ledger) ListAllocations(ctx context.Context, opts allocation.ListOpts) ([]*allocation.Allocation, error) {
	return l.store.ListAllocations(ctx, opts)
}

// GetPurchase retrieves a purchase by ID.
func (l *Ledger) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	return l.store.GetPurchase(ctx, purchaseID)
}

// ListPurchases lists an account's purchases, newest first.
func (l *Ledger) ListPurchases(ctx context.Context, accountID string, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	return l.store.ListPurchases(ctx, accountID, opts)
}

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onReserved             []OnReserved
	onReservationConfirmed []OnReservationConfirmed
	onReservationReleased  []OnReservationReleased
	onReservationExpired   []OnReservationExpired
	onSweepCompleted       []OnSweepCompleted
	onAllocated            []OnAllocated
	onAllocationConsumed   []OnAllocationConsumed
	onAllocationRevoked    []OnAllocationRevoked
	onPurchaseInitiated    []OnPurchaseInitiated
	onPurchaseCompleted    []OnPurchaseCompleted
	onPurchaseRefunded     []OnPurchaseRefunded
	onPurchaseFailed       []OnPurchaseFailed
	onPackageSaved         []OnPackageSaved
	onEntriesAppended      []OnEntriesAppended
	onOperationRejected    []OnOperationRejected
	onReconciled           []OnReconciled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnReserved); ok {
		r.onReserved = append(r.onReserved, v)
	}
	if v, ok := p.(OnReservationConfirmed); ok {
		r.onReservationConfirmed = append(r.onReservationConfirmed, v)
	}
	if v, ok := p.(OnReservationReleased); ok {
		r.onReservationReleased = append(r.onReservationReleased, v)
	}
	if v, ok := p.(OnReservationExpired); ok {
		r.onReservationExpired = append(r.onReservationExpired, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(OnAllocated); ok {
		r.onAllocated = append(r.onAllocated, v)
	}
	if v, ok := p.(OnAllocationConsumed); ok {
		r.onAllocationConsumed = append(r.onAllocationConsumed, v)
	}
	if v, ok := p.(OnAllocationRevoked); ok {
		r.onAllocationRevoked = append(r.onAllocationRevoked, v)
	}
	if v, ok := p.(OnPurchaseInitiated); ok {
		r.onPurchaseInitiated = append(r.onPurchaseInitiated, v)
	}
	if v, ok := p.(OnPurchaseCompleted); ok {
		r.onPurchaseCompleted = append(r.onPurchaseCompleted, v)
	}
	if v, ok := p.(OnPurchaseRefunded); ok {
		r.onPurchaseRefunded = append(r.onPurchaseRefunded, v)
	}
	if v, ok := p.(OnPurchaseFailed); ok {
		r.onPurchaseFailed = append(r.onPurchaseFailed, v)
	}
	if v, ok := p.(OnPackageSaved); ok {
		r.onPackageSaved = append(r.onPackageSaved, v)
	}
	if v, ok := p.(OnEntriesAppended); ok {
		r.onEntriesAppended = append(r.onEntriesAppended, v)
	}
	if v, ok := p.(OnOperationRejected); ok {
		r.onOperationRejected = append(r.onOperationRejected, v)
	}
	if v, ok := p.(OnReconciled); ok {
		r.onReconciled = append(r.onReconciled, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnReserved", reflect.TypeOf((*OnReserved)(nil)).Elem()},
	{"OnReservationConfirmed", reflect.TypeOf((*OnReservationConfirmed)(nil)).Elem()},
	{"OnReservationReleased", reflect.TypeOf((*OnReservationReleased)(nil)).Elem()},
	{"OnReservationExpired", reflect.TypeOf((*OnReservationExpired)(nil)).Elem()},
	{"OnSweepCompleted", reflect.TypeOf((*OnSweepCompleted)(nil)).Elem()},
	{"OnAllocated", reflect.TypeOf((*OnAllocated)(nil)).Elem()},
	{"OnAllocationConsumed", reflect.TypeOf((*OnAllocationConsumed)(nil)).Elem()},
	{"OnAllocationRevoked", reflect.TypeOf((*OnAllocationRevoked)(nil)).Elem()},
	{"OnPurchaseInitiated", reflect.TypeOf((*OnPurchaseInitiated)(nil)).Elem()},
	{"OnPurchaseCompleted", reflect.TypeOf((*OnPurchaseCompleted)(nil)).Elem()},
	{"OnPurchaseRefunded", reflect.TypeOf((*OnPurchaseRefunded)(nil)).Elem()},
	{"OnPurchaseFailed", reflect.TypeOf((*OnPurchaseFailed)(nil)).Elem()},
	{"OnPackageSaved", reflect.TypeOf((*OnPackageSaved)(nil)).Elem()},
	{"OnEntriesAppended", reflect.TypeOf((*OnEntriesAppended)(nil)).Elem()},
	{"OnOperationRejected", reflect.TypeOf((*OnOperationRejected)(nil)).Elem()},
	{"OnReconciled", reflect.TypeOf((*OnReconciled)(nil)).Elem()},
}

// implementedInterfaces returns the hooks a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in hooks, logging failures. Hooks never
// fail the operation that triggered them.
func emit[H Plugin](r *Registry, ctx context.Context, hook string, hooks func(*Registry) []H, fn func(H) error) {
	r.mu.RLock()
	plugins := hooks(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	emit(r, ctx, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, ledger) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitReserved calls OnReserved for all plugins that implement it.
func (r *Registry) EmitReserved(ctx context.Context, res *reservation.Reservation) {
	emit(r, ctx, "OnReserved", func(r *Registry) []OnReserved { return r.onReserved },
		func(p OnReserved) error { return p.OnReserved(ctx, res) })
}

// EmitReservationConfirmed calls OnReservationConfirmed for all plugins that implement it.
func (r *Registry) EmitReservationConfirmed(ctx context.Context, res *reservation.Reservation) {
	emit(r, ctx, "OnReservationConfirmed", func(r *Registry) []OnReservationConfirmed { return r.onReservationConfirmed },
		func(p OnReservationConfirmed) error { return p.OnReservationConfirmed(ctx, res) })
}

// EmitReservationReleased calls OnReservationReleased for all plugins that implement it.
func (r *Registry) EmitReservationReleased(ctx context.Context, res *reservation.Reservation) {
	emit(r, ctx, "OnReservationReleased", func(r *Registry) []OnReservationReleased { return r.onReservationReleased },
		func(p OnReservationReleased) error { return p.OnReservationReleased(ctx, res) })
}

// EmitReservationExpired calls OnReservationExpired for all plugins that implement it.
func (r *Registry) EmitReservationExpired(ctx context.Context, res *reservation.Reservation) {
	emit(r, ctx, "OnReservationExpired", func(r *Registry) []OnReservationExpired { return r.onReservationExpired },
		func(p OnReservationExpired) error { return p.OnReservationExpired(ctx, res) })
}

// EmitSweepCompleted calls OnSweepCompleted for all plugins that implement it.
func (r *Registry) EmitSweepCompleted(ctx context.Context, expired int, elapsed time.Duration) {
	emit(r, ctx, "OnSweepCompleted", func(r *Registry) []OnSweepCompleted { return r.onSweepCompleted },
		func(p OnSweepCompleted) error { return p.OnSweepCompleted(ctx, expired, elapsed) })
}

// EmitAllocated calls OnAllocated for all plugins that implement it.
func (r *Registry) EmitAllocated(ctx context.Context, a *allocation.Allocation) {
	emit(r, ctx, "OnAllocated", func(r *Registry) []OnAllocated { return r.onAllocated },
		func(p OnAllocated) error { return p.OnAllocated(ctx, a) })
}

// EmitAllocationConsumed calls OnAllocationConsumed for all plugins that implement it.
func (r *Registry) EmitAllocationConsumed(ctx context.Context, a *allocation.Allocation, amount decimal.Decimal) {
	emit(r, ctx, "OnAllocationConsumed", func(r *Registry) []OnAllocationConsumed { return r.onAllocationConsumed },
		func(p OnAllocationConsumed) error { return p.OnAllocationConsumed(ctx, a, amount) })
}

// EmitAllocationRevoked calls OnAllocationRevoked for all plugins that implement it.
func (r *Registry) EmitAllocationRevoked(ctx context.Context, a *allocation.Allocation, returned decimal.Decimal) {
	emit(r, ctx, "OnAllocationRevoked", func(r *Registry) []OnAllocationRevoked { return r.onAllocationRevoked },
		func(p OnAllocationRevoked) error { return p.OnAllocationRevoked(ctx, a, returned) })
}

// EmitPurchaseInitiated calls OnPurchaseInitiated for all plugins that implement it.
func (r *Registry) EmitPurchaseInitiated(ctx context.Context, pur *purchase.Purchase) {
	emit(r, ctx, "OnPurchaseInitiated", func(r *Registry) []OnPurchaseInitiated { return r.onPurchaseInitiated },
		func(p OnPurchaseInitiated) error { return p.OnPurchaseInitiated(ctx, pur) })
}

// EmitPurchaseCompleted calls OnPurchaseCompleted for all plugins that implement it.
func (r *Registry) EmitPurchaseCompleted(ctx context.Context, pur *purchase.Purchase) {
	emit(r, ctx, "OnPurchaseCompleted", func(r *Registry) []OnPurchaseCompleted { return r.onPurchaseCompleted },
		func(p OnPurchaseCompleted) error { return p.OnPurchaseCompleted(ctx, pur) })
}

// EmitPurchaseRefunded calls OnPurchaseRefunded for all plugins that implement it.
func (r *Registry) EmitPurchaseRefunded(ctx context.Context, pur *purchase.Purchase) {
	emit(r, ctx, "OnPurchaseRefunded", func(r *Registry) []OnPurchaseRefunded { return r.onPurchaseRefunded },
		func(p OnPurchaseRefunded) error { return p.OnPurchaseRefunded(ctx, pur) })
}

// EmitPurchaseFailed calls OnPurchaseFailed for all plugins that implement it.
func (r *Registry) EmitPurchaseFailed(ctx context.Context, pur *purchase.Purchase) {
	emit(r, ctx, "OnPurchaseFailed", func(r *Registry) []OnPurchaseFailed { return r.onPurchaseFailed },
		func(p OnPurchaseFailed) error { return p.OnPurchaseFailed(ctx, pur) })
}

// EmitPackageSaved calls OnPackageSaved for all plugins that implement it.
func (r *Registry) EmitPackageSaved(ctx context.Context, pkg *purchase.Package) {
	emit(r, ctx, "OnPackageSaved", func(r *Registry) []OnPackageSaved { return r.onPackageSaved },
		func(p OnPackageSaved) error { return p.OnPackageSaved(ctx, pkg) })
}

// EmitEntriesAppended calls OnEntriesAppended for all plugins that implement it.
func (r *Registry) EmitEntriesAppended(ctx context.Context, entries []*txlog.Entry) {
	emit(r, ctx, "OnEntriesAppended", func(r *Registry) []OnEntriesAppended { return r.onEntriesAppended },
		func(p OnEntriesAppended) error { return p.OnEntriesAppended(ctx, entries) })
}

// EmitOperationRejected calls OnOperationRejected for all plugins that implement it.
func (r *Registry) EmitOperationRejected(ctx context.Context, op string, accountIDs []string, err error) {
	emit(r, ctx, "OnOperationRejected", func(r *Registry) []OnOperationRejected { return r.onOperationRejected },
		func(p OnOperationRejected) error { return p.OnOperationRejected(ctx, op, accountIDs, err) })
}

// EmitReconciled calls OnReconciled for all plugins that implement it.
func (r *Registry) EmitReconciled(ctx context.Context, rep *txlog.Replay) {
	emit(r, ctx, "OnReconciled", func(r *Registry) []OnReconciled { return r.onReconciled },
		func(p OnReconciled) error { return p.OnReconciled(ctx, rep) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the credits pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

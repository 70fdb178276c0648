// Package observability provides a metrics extension for credits that
// records lifecycle event counts as Prometheus metrics.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/xraph/credits/allocation"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnReserved             = (*MetricsExtension)(nil)
	_ plugin.OnReservationConfirmed = (*MetricsExtension)(nil)
	_ plugin.OnReservationReleased  = (*MetricsExtension)(nil)
	_ plugin.OnReservationExpired   = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted       = (*MetricsExtension)(nil)
	_ plugin.OnAllocated            = (*MetricsExtension)(nil)
	_ plugin.OnAllocationConsumed   = (*MetricsExtension)(nil)
	_ plugin.OnAllocationRevoked    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseCompleted    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseRefunded     = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseFailed       = (*MetricsExtension)(nil)
	_ plugin.OnEntriesAppended      = (*MetricsExtension)(nil)
	_ plugin.OnOperationRejected    = (*MetricsExtension)(nil)
	_ plugin.OnReconciled           = (*MetricsExtension)(nil)
)

const namespace = "credits"

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a credits plugin to automatically track ledger metrics.
type MetricsExtension struct {
	// Reservation metrics
	Reservations    *prometheus.CounterVec
	ReservedCredits prometheus.Counter
	SweepExpired    prometheus.Counter
	SweepDuration   prometheus.Histogram

	// Allocation metrics
	Allocations      *prometheus.CounterVec
	AllocatedCredits prometheus.Counter
	ReturnedCredits  prometheus.Counter

	// Purchase metrics
	Purchases        *prometheus.CounterVec
	PurchasedCredits prometheus.Counter

	// Ledger metrics
	Entries         *prometheus.CounterVec
	EntryCredits    *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
}

// NewMetricsExtension registers the credits metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	f := promauto.With(reg)
	return &MetricsExtension{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation transitions by resulting status",
		}, []string{"status"}),
		ReservedCredits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserved_credits_total",
			Help:      "Credits put on hold",
		}),
		SweepExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Reservations reclaimed by the expiry sweep",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		}),

		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocation events by kind",
		}, []string{"event"}),
		AllocatedCredits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocated_credits_total",
			Help:      "Credits granted from parent to child accounts",
		}),
		ReturnedCredits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returned_credits_total",
			Help:      "Unspent credits returned by revoked allocations",
		}),

		Purchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchase transitions by resulting status",
		}, []string{"status", "package"}),
		PurchasedCredits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchased_credits_total",
			Help:      "Credits added by completed purchases",
		}),

		Entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Transaction log entries appended, by type",
		}, []string{"type"}),
		EntryCredits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entry_credits_total",
			Help:      "Credits moved by logged transitions, by type",
		}, []string{"type"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Operations rejected by a precondition",
		}, []string{"op", "reason"}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Account reconciliations by result",
		}, []string{"result"}),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReserved implements plugin.OnReserved.
func (m *MetricsExtension) OnReserved(_ context.Context, r *reservation.Reservation) error {
	m.Reservations.WithLabelValues(string(reservation.StatusReserved)).Inc()
	m.ReservedCredits.Add(credits(r.Amount))
	return nil
}

// OnReservationConfirmed implements plugin.OnReservationConfirmed.
func (m *MetricsExtension) OnReservationConfirmed(_ context.Context, _ *reservation.Reservation) error {
	m.Reservations.WithLabelValues(string(reservation.StatusConfirmed)).Inc()
	return nil
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (m *MetricsExtension) OnReservationReleased(_ context.Context, _ *reservation.Reservation) error {
	m.Reservations.WithLabelValues(string(reservation.StatusReleased)).Inc()
	return nil
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (m *MetricsExtension) OnReservationExpired(_ context.Context, _ *reservation.Reservation) error {
	m.Reservations.WithLabelValues(string(reservation.StatusExpired)).Inc()
	return nil
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, expired int, elapsed time.Duration) error {
	m.SweepExpired.Add(float64(expired))
	m.SweepDuration.Observe(elapsed.Seconds())
	return nil
}

// ──────────────────────────────────────────────────
// Allocation hooks
// ──────────────────────────────────────────────────

// OnAllocated implements plugin.OnAllocated.
func (m *MetricsExtension) OnAllocated(_ context.Context, a *allocation.Allocation) error {
	m.Allocations.WithLabelValues("allocated").Inc()
	m.AllocatedCredits.Add(credits(a.Allocated))
	return nil
}

// OnAllocationConsumed implements plugin.OnAllocationConsumed.
func (m *MetricsExtension) OnAllocationConsumed(_ context.Context, _ *allocation.Allocation, _ decimal.Decimal) error {
	m.Allocations.WithLabelValues("consumed").Inc()
	return nil
}

// OnAllocationRevoked implements plugin.OnAllocationRevoked.
func (m *MetricsExtension) OnAllocationRevoked(_ context.Context, _ *allocation.Allocation, returned decimal.Decimal) error {
	m.Allocations.WithLabelValues("revoked").Inc()
	m.ReturnedCredits.Add(credits(returned))
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseCompleted implements plugin.OnPurchaseCompleted.
func (m *MetricsExtension) OnPurchaseCompleted(_ context.Context, p *purchase.Purchase) error {
	m.Purchases.WithLabelValues(string(p.Status), p.PackageCode).Inc()
	m.PurchasedCredits.Add(credits(p.Credits))
	return nil
}

// OnPurchaseRefunded implements plugin.OnPurchaseRefunded.
func (m *MetricsExtension) OnPurchaseRefunded(_ context.Context, p *purchase.Purchase) error {
	m.Purchases.WithLabelValues(string(p.Status), p.PackageCode).Inc()
	return nil
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (m *MetricsExtension) OnPurchaseFailed(_ context.Context, p *purchase.Purchase) error {
	m.Purchases.WithLabelValues(string(p.Status), p.PackageCode).Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnEntriesAppended implements plugin.OnEntriesAppended.
func (m *MetricsExtension) OnEntriesAppended(_ context.Context, entries []*txlog.Entry) error {
	for _, e := range entries {
		m.Entries.WithLabelValues(string(e.Type)).Inc()
		m.EntryCredits.WithLabelValues(string(e.Type)).Add(credits(e.Amount))
	}
	return nil
}

// OnOperationRejected implements plugin.OnOperationRejected.
func (m *MetricsExtension) OnOperationRejected(_ context.Context, op string, _ []string, err error) error {
	m.Rejections.WithLabelValues(op, reason(err)).Inc()
	return nil
}

// OnReconciled implements plugin.OnReconciled.
func (m *MetricsExtension) OnReconciled(_ context.Context, r *txlog.Replay) error {
	result := "consistent"
	if !r.Consistent() {
		result = "discrepancy"
	}
	m.Reconciliations.WithLabelValues(result).Inc()
	return nil
}

// credits converts an amount for a float metric. Precision loss is
// acceptable here; balances never pass through this path.
func credits(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func reason(err error) string {
	switch {
	case errors.Is(err, errs.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, errs.ErrReservationExpired):
		return "reservation_expired"
	case errors.Is(err, errs.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errs.ErrPackageInactive):
		return "package_inactive"
	default:
		return "other"
	}
}

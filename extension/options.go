package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/credits"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCreditsOption passes a credits.Option through to the underlying engine.
func WithCreditsOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, credits.WithPlugin(p))
	}
}

// WithSweepLease makes the sweep worker run only while lease is held.
func WithSweepLease(lease credits.Lease) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, credits.WithSweepLease(lease))
	}
}

// WithRegisterer sets where the metrics plugin registers its collectors
// (default: prometheus.DefaultRegisterer).
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Extension) { e.registerer = reg }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableMetrics skips the Prometheus metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithReservationTTL sets the default hold lifetime.
func WithReservationTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.ReservationTTL = d }
}

// WithSweepInterval sets how often expired reservations are reclaimed.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithSweepBatchSize sets the number of reservations loaded per sweep pass.
func WithSweepBatchSize(n int) Option {
	return func(e *Extension) { e.config.SweepBatchSize = n }
}

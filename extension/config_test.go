package extension

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/credits/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	defaults := DefaultConfig()

	tests := []struct {
		name         string
		yaml         Config
		programmatic Config
		want         Config
	}{
		{
			name: "empty yields defaults",
			want: defaults,
		},
		{
			name:         "yaml wins over programmatic",
			yaml:         Config{SweepInterval: 10 * time.Second},
			programmatic: Config{SweepInterval: time.Hour, SweepBatchSize: 7},
			want: Config{
				ReservationTTL: defaults.ReservationTTL,
				SweepInterval:  10 * time.Second,
				SweepBatchSize: 7,
				MaxRetries:     defaults.MaxRetries,
			},
		},
		{
			name:         "programmatic flags are sticky",
			yaml:         Config{ReservationTTL: time.Minute},
			programmatic: Config{DisableMigrate: true, DisableMetrics: true},
			want: Config{
				DisableMigrate: true,
				DisableMetrics: true,
				ReservationTTL: time.Minute,
				SweepInterval:  defaults.SweepInterval,
				SweepBatchSize: defaults.SweepBatchSize,
				MaxRetries:     defaults.MaxRetries,
			},
		},
		{
			name: "negative sweep interval survives",
			yaml: Config{SweepInterval: -1},
			want: Config{
				ReservationTTL: defaults.ReservationTTL,
				SweepInterval:  -1,
				SweepBatchSize: defaults.SweepBatchSize,
				MaxRetries:     defaults.MaxRetries,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeConfigurations(tt.yaml, tt.programmatic); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOptionsApply(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := memory.New()
	e := New(
		WithStore(s),
		WithRegisterer(reg),
		WithReservationTTL(time.Minute),
		WithSweepInterval(-1),
		WithSweepBatchSize(5),
		WithDisableMigrate(),
	)
	if e.store != s || e.registerer != reg {
		t.Fatal("store or registerer not applied")
	}
	if e.config.ReservationTTL != time.Minute || e.config.SweepBatchSize != 5 || !e.config.DisableMigrate {
		t.Errorf("config = %+v", e.config)
	}

	e.config = mergeWithDefaults(e.config)
	opts := e.buildCreditsOpts()
	if e.metrics == nil {
		t.Fatal("metrics plugin not built")
	}
	if len(opts) != 6 {
		t.Errorf("options = %d, want 6", len(opts))
	}
	// Building twice must not register the collectors again.
	e.buildCreditsOpts()
}

func TestNoMigrateSkipsSchema(t *testing.T) {
	s := noMigrate{memory.New()}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

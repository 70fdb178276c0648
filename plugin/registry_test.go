package plugin_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
)

type counting struct {
	name string

	mu       sync.Mutex
	reserved int
	appended int
	fail     error
}

func (c *counting) Name() string { return c.name }

func (c *counting) OnReserved(context.Context, *reservation.Reservation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved++
	return c.fail
}

func (c *counting) OnEntriesAppended(_ context.Context, entries []*txlog.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appended += len(entries)
	return c.fail
}

type slow struct{ delay time.Duration }

func (s slow) Name() string { return "slow" }

func (s slow) OnReserved(ctx context.Context, _ *reservation.Reservation) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return nil
}

type nameOnly struct{}

func (nameOnly) Name() string { return "name-only" }

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&counting{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&counting{name: "a"}); err == nil {
		t.Fatal("duplicate registration succeeded")
	}
	if err := r.Register(nameOnly{}); err != nil {
		t.Fatal(err)
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
	if r.Get("name-only") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
	names := make([]string, 0)
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	if !slices.Equal(names, []string{"a", "name-only"}) {
		t.Errorf("List = %v", names)
	}
}

func TestEmitDispatchesByInterface(t *testing.T) {
	r := plugin.NewRegistry()
	a := &counting{name: "a"}
	b := &counting{name: "b", fail: errors.New("boom")}
	for _, p := range []plugin.Plugin{a, b, nameOnly{}} {
		if err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	r.EmitReserved(ctx, &reservation.Reservation{ID: "r1"})
	r.EmitEntriesAppended(ctx, []*txlog.Entry{{}, {}})
	// No plugin implements these; they must be no-ops.
	r.EmitReconciled(ctx, &txlog.Replay{})
	r.EmitSweepCompleted(ctx, 3, time.Second)

	for _, c := range []*counting{a, b} {
		if c.reserved != 1 || c.appended != 2 {
			t.Errorf("%s: reserved %d appended %d", c.name, c.reserved, c.appended)
		}
	}
}

func TestEmitBoundsSlowHooks(t *testing.T) {
	r := plugin.NewRegistry().
		WithLogger(slog.New(slog.DiscardHandler)).
		WithTimeout(20 * time.Millisecond)
	if err := r.Register(slow{delay: time.Second}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	r.EmitReserved(context.Background(), &reservation.Reservation{ID: "r1"})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("EmitReserved blocked for %s", elapsed)
	}
}

package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/credits/lease"
)

func setup(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLeaseIsExclusive(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()

	a := lease.New(client, lease.WithOwner("a"), lease.WithTTL(time.Minute))
	b := lease.New(client, lease.WithOwner("b"), lease.WithTTL(time.Minute))

	steps := []struct {
		name string
		l    *lease.Redis
		want bool
	}{
		{"a acquires", a, true},
		{"b is refused", b, false},
		{"a renews", a, true},
	}
	for _, s := range steps {
		got, err := s.l.TryAcquire(ctx)
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got != s.want {
			t.Fatalf("%s: got %v, want %v", s.name, got, s.want)
		}
	}
	if v, _ := mr.Get(lease.DefaultKey); v != "a" {
		t.Errorf("holder = %q, want a", v)
	}

	// A release by a non-holder leaves the lease in place.
	if err := b.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(lease.DefaultKey) {
		t.Fatal("b released a's lease")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, err := b.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("b after release: %v %v", ok, err)
	}
}

func TestLeaseLapses(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()

	a := lease.New(client, lease.WithOwner("a"), lease.WithTTL(10*time.Second), lease.WithKey("sweep"))
	b := lease.New(client, lease.WithOwner("b"), lease.WithKey("sweep"))

	if ok, _ := a.TryAcquire(ctx); !ok {
		t.Fatal("a did not acquire")
	}
	mr.FastForward(11 * time.Second)
	if ok, err := b.TryAcquire(ctx); err != nil || !ok {
		t.Fatalf("b after lapse: %v %v", ok, err)
	}
	if ok, _ := a.TryAcquire(ctx); ok {
		t.Error("a reacquired a lease held by b")
	}
}

func TestLeaseReportsRedisErrors(t *testing.T) {
	mr, client := setup(t)
	mr.Close()

	if _, err := lease.New(client).TryAcquire(context.Background()); err == nil {
		t.Error("TryAcquire against a closed server succeeded")
	}
}

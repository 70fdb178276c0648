// Package lease provides a Redis-backed credits.Lease so only one instance
// of a fleet runs the reservation expiry sweep at a time.
package lease

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/credits"
)

// Defaults used by New.
const (
	DefaultKey = "credits:sweep:leader"
	DefaultTTL = 2 * time.Minute
)

var _ credits.Lease = (*Redis)(nil)

var renewScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('pexpire', KEYS[1], ARGV[2])
else
  return 0
end
`)

var releaseScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

// Redis is a leader lease held as a key with a TTL. The TTL should exceed
// the sweep interval so a live holder renews before it lapses.
type Redis struct {
	client goredis.UniversalClient
	key    string
	owner  string
	ttl    time.Duration
}

// Option configures a Redis lease.
type Option func(*Redis)

// WithKey sets the Redis key the lease is stored under.
func WithKey(key string) Option {
	return func(r *Redis) { r.key = key }
}

// WithOwner sets the value identifying this instance as holder.
func WithOwner(owner string) Option {
	return func(r *Redis) { r.owner = owner }
}

// WithTTL sets how long the lease outlives its last renewal.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// New creates a lease on client. The owner defaults to host name and pid.
func New(client goredis.UniversalClient, opts ...Option) *Redis {
	host, _ := os.Hostname()
	r := &Redis{
		client: client,
		key:    DefaultKey,
		owner:  fmt.Sprintf("%s-%d", host, os.Getpid()),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryAcquire takes the lease if it is free, or renews it if this instance
// already holds it.
func (r *Redis) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("credits/lease: acquire %s: %w", r.key, err)
	}
	if ok {
		return true, nil
	}
	n, err := renewScript.Run(ctx, r.client, []string{r.key}, r.owner, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("credits/lease: renew %s: %w", r.key, err)
	}
	return n == 1, nil
}

// Release gives the lease up if this instance holds it.
func (r *Redis) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key}, r.owner).Err(); err != nil {
		return fmt.Errorf("credits/lease: release %s: %w", r.key, err)
	}
	return nil
}

// Owner returns the value this instance writes as holder.
func (r *Redis) Owner() string { return r.owner }

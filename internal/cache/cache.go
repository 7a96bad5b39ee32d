// Package cache wraps a Redis-compatible store with the tri-state dedup
// protocol of spec §3/§4.6.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// State is the lifecycle marker held per entity id. The zero value is
// StateAbsent, matching the spec's "absent is the implicit default".
type State string

const (
	StateAbsent  State = ""
	StateBatched State = "BATCHED"
	StateWritten State = "WRITTEN"
)

// Cache is a thin async-style wrapper over go-redis. All writes are
// serialized through a single mutex (spec §4.6) so test doubles backed by
// non-concurrent backends stay safe, and so the at-most-once guarantees of
// I2/I3 hold under concurrent workers.
type Cache struct {
	mu     sync.Mutex
	client *redis.Client
}

// Config is the subset of connection settings the crawler exposes (spec §3
// "Operational config").
type Config struct {
	Addr string
	DB   int
}

// New connects to addr/db and, if fresh is true, flushes the store per spec
// §6 "Fresh-start mode flushes at init." It verifies connectivity
// immediately: an unreachable store is a fatal init error (spec §6, §7).
func New(ctx context.Context, cfg Config, fresh bool) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache unreachable at %s: %w", cfg.Addr, err)
	}

	c := &Cache{client: client}
	if fresh {
		if err := c.FlushAll(ctx); err != nil {
			return nil, fmt.Errorf("cache fresh-start flush: %w", err)
		}
	}
	return c, nil
}

// Get returns the state stored for key, or StateAbsent if unset.
func (c *Cache) Get(ctx context.Context, key string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return StateAbsent, nil
	}
	if err != nil {
		return StateAbsent, fmt.Errorf("cache get %q: %w", key, err)
	}
	return State(v), nil
}

// Set stores value for key, overwriting any previous state. Callers are
// responsible for honoring the monotonic absent -> BATCHED -> WRITTEN
// progression (spec §3 invariants); Set itself does not enforce ordering so
// that "mark WRITTEN" can always win regardless of stale BATCHED races.
func (c *Cache) Set(ctx context.Context, key string, value State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.Set(ctx, key, string(value), 0).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Exists reports whether key has any state recorded at all.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists %q: %w", key, err)
	}
	return n > 0, nil
}

// FlushAll clears the entire store. Used at fresh-start init.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.client.FlushAll(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Package cache provides an in-memory key/value cache with optional per-entry expiry.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NoExpiry marks an entry that stays visible until it is deleted.
const NoExpiry time.Duration = 0

type entry[V any] struct {
	value    V
	expireAt time.Time // zero => no TTL
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Cache is a concurrency-safe map whose entries may expire.
// Expired entries are never returned; they are removed lazily by Get or in bulk by Sweep.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]entry[V]
	now        func() time.Time
	defaultTTL time.Duration
	name       string
}

// Option configures a Cache
type Option func(*options)

type options struct {
	now        func() time.Time
	defaultTTL time.Duration
	name       string
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDefaultTTL sets the TTL applied by SetDefault
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) { o.defaultTTL = ttl }
}

// WithName labels the cache in log output
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New creates an empty cache
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		now:        o.now,
		defaultTTL: o.defaultTTL,
		name:       o.name,
	}
}

// Get returns the live value for key. An expired entry is removed and reported absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. A ttl <= 0 means the entry never expires.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		e.expireAt = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// SetDefault stores value using the cache's default TTL
func (c *Cache[K, V]) SetDefault(key K, value V) {
	c.Set(key, value, c.defaultTTL)
}

// Delete removes key if present
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet swept
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were removed
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps the cache every interval until ctx is done
func (c *Cache[K, V]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					logrus.WithField("cache", c.name).Debugf("Swept %d expired entries", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/router-providers/internal/cache"
	"github.com/yourorg/router-providers/internal/metrics"
)

// DefaultFetchTimeout bounds an inner fetch shared by concurrent misses
const DefaultFetchTimeout = 30 * time.Second

// Caching consults a cache before delegating to its inner provider and stores
// every successful inner result. Failures are never cached.
type Caching[K comparable, V any] struct {
	name    string
	inner   Provider[K, V]
	cache   *cache.Cache[K, V]
	ttl     time.Duration
	timeout time.Duration
	sink    metrics.Sink
	tags    metrics.Tags

	mu      sync.Mutex
	flights map[K]*flight
}

// flight coalesces the misses of one key. waiters counts the callers using it.
type flight struct {
	group   singleflight.Group
	waiters int
}

// NewCaching wraps inner with c. A ttl of cache.NoExpiry keeps entries forever.
// The cache is shared, not copied: callers holding c observe the decorator's writes.
func NewCaching[K comparable, V any](name string, inner Provider[K, V], c *cache.Cache[K, V], ttl time.Duration) *Caching[K, V] {
	return &Caching[K, V]{
		name:    name,
		inner:   inner,
		cache:   c,
		ttl:     ttl,
		timeout: DefaultFetchTimeout,
		sink:    metrics.Nop{},
		flights: make(map[K]*flight),
	}
}

// WithMetrics reports cache hits and misses to sink with the given tags
func (p *Caching[K, V]) WithMetrics(sink metrics.Sink, tags metrics.Tags) *Caching[K, V] {
	p.sink = metrics.Safe(sink)
	p.tags = tags
	return p
}

// WithFetchTimeout bounds the shared inner fetch. It runs detached from any
// single caller's cancellation.
func (p *Caching[K, V]) WithFetchTimeout(d time.Duration) *Caching[K, V] {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// Cache returns the cache backing this decorator
func (p *Caching[K, V]) Cache() *cache.Cache[K, V] {
	return p.cache
}

func (p *Caching[K, V]) join(key K) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.flights[key]
	if !ok {
		f = &flight{}
		p.flights[key] = f
	}
	f.waiters++
	return f
}

func (p *Caching[K, V]) leave(key K, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.waiters--
	if f.waiters == 0 && p.flights[key] == f {
		delete(p.flights, key)
	}
}

// Fetch returns the cached value for key, or loads it from the inner provider.
// Concurrent misses for the same key share a single inner call; each caller
// stops waiting when its own ctx is done.
func (p *Caching[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	if v, ok := p.cache.Get(key); ok {
		p.sink.PutMetric(p.name+".cache.hit", 1, metrics.Count, p.tags)
		return v, nil
	}
	p.sink.PutMetric(p.name+".cache.miss", 1, metrics.Count, p.tags)

	f := p.join(key)
	defer p.leave(key, f)

	ch := f.group.DoChan("", func() (interface{}, error) {
		// another caller may have filled the entry while we waited for the group
		if v, ok := p.cache.Get(key); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		v, err := p.inner.Fetch(fctx, key)
		if err != nil {
			return v, err
		}
		p.cache.Set(key, v, p.ttl)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = Transient(fmt.Errorf("%s: %w: %w", p.name, ErrTimeout, err))
		}
		return zero, err
	case res := <-ch:
		if res.Err != nil {
			logrus.WithFields(logrus.Fields{
				"provider": p.name,
				"key":      fmt.Sprint(key),
				"shared":   res.Shared,
			}).Debugf("Inner fetch failed: %v", res.Err)
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

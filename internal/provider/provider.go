// Package provider defines the generic read-through provider shape and the two
// decorators used to compose providers: Caching and Fallback.
package provider

import (
	"context"
)

// Provider reads a value for a key from some, possibly remote, source
type Provider[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
}

// Func adapts a plain function to the Provider interface
type Func[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Fetch implements Provider
func (f Func[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

package provider

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Fallback prefers primary and consults secondary only when primary has no
// entry for the key. Any other primary failure is returned as is.
type Fallback[K comparable, V any] struct {
	name      string
	primary   Provider[K, V]
	secondary Provider[K, V]
}

// NewFallback composes primary and secondary
func NewFallback[K comparable, V any](name string, primary, secondary Provider[K, V]) *Fallback[K, V] {
	return &Fallback[K, V]{name: name, primary: primary, secondary: secondary}
}

// Fetch implements Provider
func (f *Fallback[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	v, err := f.primary.Fetch(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrNotFound) || f.secondary == nil {
		return v, err
	}

	logrus.WithField("provider", f.name).Debugf("Primary has no entry for %v, trying secondary", key)
	return f.secondary.Fetch(ctx, key)
}

package provider

import (
	"errors"
	"fmt"

	"github.com/yourorg/router-providers/internal/types"
)

// Error kinds shared by every provider. Match them with errors.Is.
var (
	// ErrNotFound means the key is absent from this source. FallbackChain absorbs it.
	ErrNotFound = errors.New("not found")

	// ErrTransient covers timeouts, resource exhaustion and transport hiccups that may succeed on retry.
	ErrTransient = errors.New("transient failure")

	// ErrTimeout marks work abandoned because the caller's deadline elapsed.
	ErrTimeout = errors.New("timeout")

	// ErrConfiguration means a network's setup is missing or malformed.
	ErrConfiguration = errors.New("configuration error")

	// ErrBatchUnderThreshold means a batch finished below its minimum success rate.
	ErrBatchUnderThreshold = errors.New("batch under success threshold")

	// ErrUnavailable means the source permanently cannot answer. It is never cached.
	ErrUnavailable = errors.New("unavailable")
)

// ConfigurationError reports why a network could not be set up
type ConfigurationError struct {
	Network types.NetworkID
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network %s: %s: %v", e.Network, e.Reason, e.Err)
	}
	return fmt.Sprintf("network %s: %s", e.Network, e.Reason)
}

// Unwrap exposes the underlying cause
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigurationError match ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

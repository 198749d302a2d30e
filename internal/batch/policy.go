package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/yourorg/router-providers/internal/provider"
)

// RetryPolicy governs the backoff between attempts of the same chunk
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	MinDelay   time.Duration `json:"min_delay" yaml:"min_delay"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay"`
}

// FallbackPolicy is the reduced-scope calibration tried once for a chunk that
// still fails after its retries are exhausted
type FallbackPolicy struct {
	ChunkSize            int    `json:"chunk_size" yaml:"chunk_size"`
	PerCallResourceLimit uint64 `json:"gas_limit_per_call" yaml:"gas_limit_per_call"`
	// GasLimitOverride caps the outer multicall; zero leaves it to the node
	GasLimitOverride uint64 `json:"gas_limit_override" yaml:"gas_limit_override"`
}

// BatchPolicy governs partitioning and the tolerated share of failed calls
type BatchPolicy struct {
	ChunkSize            int             `json:"chunk_size" yaml:"chunk_size"`
	PerCallResourceLimit uint64          `json:"gas_limit_per_call" yaml:"gas_limit_per_call"`
	MinSuccessRate       float64         `json:"min_success_rate" yaml:"min_success_rate"`
	Fallback             *FallbackPolicy `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// DefaultRetryPolicy returns the quote retry defaults: two retries between 100ms and 1s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second}
}

// DefaultBatchPolicy returns the quote batching defaults including the smaller fallback calibration
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		ChunkSize:            210,
		PerCallResourceLimit: 705_000,
		MinSuccessRate:       0.15,
		Fallback: &FallbackPolicy{
			ChunkSize:            70,
			PerCallResourceLimit: 705_000,
			GasLimitOverride:     2_000_000,
		},
	}
}

// Validate checks the retry policy
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must be >= 0, got %d", provider.ErrConfiguration, p.MaxRetries)
	case p.MinDelay < 0:
		return fmt.Errorf("%w: min delay must be >= 0, got %s", provider.ErrConfiguration, p.MinDelay)
	case p.MaxDelay < p.MinDelay:
		return fmt.Errorf("%w: max delay %s is below min delay %s", provider.ErrConfiguration, p.MaxDelay, p.MinDelay)
	}
	return nil
}

// Validate checks the batch policy and its fallback
func (p BatchPolicy) Validate() error {
	var errs []error
	if p.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be > 0, got %d", p.ChunkSize))
	}
	if p.PerCallResourceLimit == 0 {
		errs = append(errs, errors.New("gas limit per call must be > 0"))
	}
	if p.MinSuccessRate < 0 || p.MinSuccessRate > 1 {
		errs = append(errs, fmt.Errorf("min success rate must be within [0,1], got %g", p.MinSuccessRate))
	}
	if fb := p.Fallback; fb != nil {
		if fb.ChunkSize <= 0 {
			errs = append(errs, fmt.Errorf("fallback chunk size must be > 0, got %d", fb.ChunkSize))
		}
		if fb.PerCallResourceLimit == 0 {
			errs = append(errs, errors.New("fallback gas limit per call must be > 0"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", provider.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// UnderThresholdError reports a batch that finished below its minimum success rate
type UnderThresholdError struct {
	Succeeded int
	Total     int
	Rate      float64
	Min       float64
	// Cause is set when the caller's deadline left calls unresolved
	Cause error
}

func (e *UnderThresholdError) Error() string {
	msg := fmt.Sprintf("batch under success threshold: %d/%d calls succeeded (%.2f < %.2f)", e.Succeeded, e.Total, e.Rate, e.Min)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes every UnderThresholdError match provider.ErrBatchUnderThreshold
func (e *UnderThresholdError) Is(target error) bool {
	return target == provider.ErrBatchUnderThreshold
}

// Unwrap exposes the cause
func (e *UnderThresholdError) Unwrap() error {
	return e.Cause
}

// Package circuitbreaker stops hammering an RPC endpoint that keeps failing at the
// transport level and lets a few probe calls through once a cool-down has passed.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are rejected
	StateHalfOpen              // Probing whether the endpoint recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrOpen is returned by Allow while the circuit is open
var ErrOpen = errors.New("circuit breaker open")

// Thresholds defines when the circuit trips
type Thresholds struct {
	// Consecutive failures that open the circuit
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// CircuitBreaker counts consecutive failures of a guarded resource
type CircuitBreaker struct {
	name       string
	thresholds Thresholds

	mu                  sync.Mutex
	state               State
	lastTrip            time.Time
	consecutiveFailures int
	successCount        int
	probesInFlight      int

	// Duration before a half-open probe is allowed
	resetDelay time.Duration

	// Successful probes required to close the circuit again
	successThreshold int

	onTripCallback func(name, reason string)
	now            func() time.Time
}

// New creates a CircuitBreaker named after the resource it guards
func New(name string, t Thresholds) *CircuitBreaker {
	if t.MaxConsecutiveFailures <= 0 {
		t.MaxConsecutiveFailures = 5
	}
	return &CircuitBreaker{
		name:             name,
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       30 * time.Second,
		successThreshold: 1,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful probes needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	if threshold > 0 {
		cb.successThreshold = threshold
	}
	return cb
}

// WithTripCallback sets a function called asynchronously whenever the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(name, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Allow reports whether a call may proceed. It returns ErrOpen while the circuit is
// open and the reset delay has not elapsed yet, and while half-open once the success
// threshold's worth of probes is already in flight. Every allowed call must end with
// RecordSuccess, RecordFailure or Release.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if cb.probesInFlight >= cb.successThreshold {
			return fmt.Errorf("%s: %w", cb.name, ErrOpen)
		}
		cb.probesInFlight++
		return nil
	}
	if cb.now().Sub(cb.lastTrip) < cb.resetDelay {
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}

	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.probesInFlight = 1
	logrus.WithField("breaker", cb.name).Info("Circuit breaker half-open: testing recovery")
	return nil
}

// Release ends an allowed call without an outcome, e.g. one abandoned by its caller
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.endProbe()
}

// endProbe frees a half-open probe slot; callers hold cb.mu
func (cb *CircuitBreaker) endProbe() {
	if cb.state == StateHalfOpen && cb.probesInFlight > 0 {
		cb.probesInFlight--
	}
}

// RecordSuccess notes a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.endProbe()
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			cb.probesInFlight = 0
			logrus.WithField("breaker", cb.name).Info("Circuit breaker closed: endpoint recovered")
		}
	}
}

// RecordFailure notes a failed call and trips the circuit when the threshold is hit.
// Any failure while half-open re-opens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip(fmt.Sprintf("probe failed: %v", err))
	case cb.state == StateClosed && cb.consecutiveFailures >= cb.thresholds.MaxConsecutiveFailures:
		cb.trip(fmt.Sprintf("%d consecutive failures, last: %v", cb.consecutiveFailures, err))
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	cb.consecutiveFailures = 0
	cb.probesInFlight = 0
	logrus.WithField("breaker", cb.name).Info("Circuit breaker manually reset to closed state")
}

// trip opens the circuit; callers hold cb.mu
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.successCount = 0
	cb.probesInFlight = 0
	logrus.WithField("breaker", cb.name).Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(cb.name, reason)
	}
}

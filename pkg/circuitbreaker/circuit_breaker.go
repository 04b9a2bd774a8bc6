package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Options configures a CircuitBreaker
type Options struct {
	// MaxFailures consecutive failures open the circuit
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a trial call
	Timeout time.Duration
	// HalfOpenMaxCalls successful trial calls close the circuit again
	HalfOpenMaxCalls uint32
	// IsFailure decides which errors count against the circuit. Nil counts all.
	IsFailure func(error) bool
	Logger    *logrus.Logger
}

// CircuitBreaker stops calling a failing dependency for a while after
// repeated failures.
type CircuitBreaker struct {
	name string
	opts Options
	now  func() time.Time

	mu              sync.Mutex
	state           State
	failures        uint32
	halfOpenCalls   uint32
	successCount    uint32
	requestCount    uint32
	lastFailureTime time.Time
}

// New creates a circuit breaker
func New(name string, opts Options) *CircuitBreaker {
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HalfOpenMaxCalls == 0 {
		opts.HalfOpenMaxCalls = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &CircuitBreaker{name: name, opts: opts, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()

	switch cb.state {
	case StateOpen:
		return &CircuitBreakerError{Name: cb.name, State: cb.state}
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.opts.HalfOpenMaxCalls {
			return &CircuitBreakerError{Name: cb.name, State: cb.state}
		}
		cb.halfOpenCalls++
	}

	cb.requestCount++
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.opts.IsFailure == nil || cb.opts.IsFailure(err))
	if !failed {
		cb.onSuccessLocked()
		return
	}

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.opts.MaxFailures {
			cb.tripLocked()
		}
	case StateHalfOpen:
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	cb.successCount++

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.successCount >= cb.opts.HalfOpenMaxCalls {
			cb.state = StateClosed
			cb.failures = 0
			cb.halfOpenCalls = 0
			cb.opts.Logger.WithField("circuit_breaker", cb.name).Info("Circuit breaker closed after successful recovery")
		}
	}
}

// advanceLocked moves an open circuit to half-open once the timeout passed
func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.opts.Timeout {
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.successCount = 0
		cb.opts.Logger.WithField("circuit_breaker", cb.name).Info("Circuit breaker transitioned to half-open")
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = StateOpen
	cb.opts.Logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
	}).Warn("Circuit breaker opened due to failures")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requestCount,
		Successes:       cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string
	State           State
	Failures        uint32
	Requests        uint32
	Successes       uint32
	LastFailureTime time.Time
}

// CircuitBreakerError is returned instead of calling through an open circuit
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}

// Package resiliency provides the per-dependency circuit breakers
// named in the concurrency model: one breaker each for the policy
// registry, OPA, Kafka, and Redis, so a failing external dependency
// degrades predictably instead of retrying indefinitely.
package resiliency

import (
	"fmt"
	"sync"
	"time"
)

// State is the circuit breaker's lifecycle state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Breaker is a simple failure-count circuit breaker: after Threshold
// consecutive failures it opens for ResetTimeout, then moves to
// half-open on the next Allow. Half-open does not limit calls to a
// single trial: every Allow returns true until a recorded Success
// closes the breaker or a recorded Failure reopens it.
type Breaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        State
}

// New creates a breaker for the named dependency.
func New(name string, threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Allow reports whether a call may proceed, transitioning OPEN ->
// HALF_OPEN once resetTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// Success records a successful call, closing the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
}

// Failure records a failed call, opening the breaker once threshold
// consecutive failures are reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = time.Now()
	if b.failureCount >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current state, for gauges/health checks.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Dependency names used to key the Registry.
const (
	DependencyPolicy = "policy_registry"
	DependencyOPA    = "opa"
	DependencyKafka  = "kafka"
	DependencyRedis  = "redis"
)

// Registry holds one breaker per external dependency.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry with the four dependency breakers
// named in the concurrency model, each allowing 5 consecutive failures
// before opening for 10s.
func NewRegistry() *Registry {
	r := &Registry{breakers: make(map[string]*Breaker)}
	for _, dep := range []string{DependencyPolicy, DependencyOPA, DependencyKafka, DependencyRedis} {
		r.breakers[dep] = New(dep, 5, 10*time.Second)
	}
	return r
}

// For returns the breaker for a dependency, creating a default one on
// first use for dependencies outside the four named above.
func (r *Registry) For(dependency string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[dependency]
	if !ok {
		b = New(dependency, 5, 10*time.Second)
		r.breakers[dependency] = b
	}
	return b
}

// ErrOpen is returned by callers that check Allow() themselves and
// want a uniform error to propagate.
func ErrOpen(dependency string) error {
	return fmt.Errorf("resiliency: circuit breaker open for %s", dependency)
}

package mirror

import (
	"sync"
	"time"
)

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

// CircuitBreaker guards the mirror store. While it is open the Writer skips
// queued ops and readers skip restore lookups, so a down Redis or Kafka costs
// nothing on the request path. The decision state in memory never depends on it.
//
// threshold consecutive write failures open it for cooldown. The first op
// after cooldown runs half-open: success closes the circuit, a single failure
// reopens it for another cooldown.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state     breakerState
	failures  int
	openUntil time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall back
// to 5 failures and a one minute cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     stateClosed,
	}
}

// Allow reports whether a mirror op may reach the store. An open breaker whose
// cooldown has passed moves to half-open and admits the op.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == stateOpen {
		if !cb.now().After(cb.openUntil) {
			return false
		}
		cb.state = stateHalfOpen
	}
	return true
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = stateClosed
}

// RecordFailure counts a failed store write. It returns true when this call
// opened the circuit.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch cb.state {
	case stateOpen:
		return false
	case stateHalfOpen:
		cb.trip()
		return true
	}
	if cb.failures >= cb.threshold {
		cb.trip()
		return true
	}
	return false
}

func (cb *CircuitBreaker) trip() {
	cb.state = stateOpen
	cb.openUntil = cb.now().Add(cb.cooldown)
}

// IsOpen reports whether mirror ops are currently being skipped.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen
}

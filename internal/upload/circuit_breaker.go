package upload

import (
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops attempts against a destination after repeated
// failures and lets one probe through once the cool-down has passed.
type CircuitBreaker struct {
	mu sync.Mutex

	state           CircuitState
	failureCount    int
	lastStateChange time.Time

	failureThreshold int
	timeout          time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and stays open for timeout.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		timeout:          timeout,
		now:              time.Now,
		lastStateChange:  time.Now(),
	}
}

// CanAttempt checks if an upload can be attempted
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.timeout {
			cb.state = StateHalfOpen
			cb.failureCount = 0
			return true
		}
	}
	return false
}

// RecordSuccess closes the circuit
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.lastStateChange = cb.now()
	}
	cb.state = StateClosed
	cb.failureCount = 0
}

// RecordFailure records a failed upload. A failed half-open probe reopens
// the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
			cb.lastStateChange = cb.now()
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.lastStateChange = cb.now()
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

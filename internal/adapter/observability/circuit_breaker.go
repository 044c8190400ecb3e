package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call when the breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit breaker is closed and requests are allowed.
	StateClosed CircuitBreakerState = iota
	// StateOpen means the circuit breaker is open and requests are blocked.
	StateOpen
	// StateHalfOpen means the circuit breaker is half-open and testing requests.
	StateHalfOpen
)

// String returns the lowercase name of the state.
func (s CircuitBreakerState) String() string {
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

// CircuitBreaker stops calling a failing upstream for a cooldown period.
// The lock is held only while updating state, never while fn runs, so
// concurrent requests do not serialize on the breaker.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	timeout      time.Duration
	halfOpenMax  int
	mu           sync.Mutex
	state        CircuitBreakerState
	failures     int
	lastFailure  time.Time
	successCount int
	inFlight     int
	now          func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker. maxFailures <= 0 disables tripping.
func NewCircuitBreaker(name string, maxFailures int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		state:       StateClosed,
		halfOpenMax: 3, // probe requests allowed while half-open
		now:         time.Now,
	}
}

// Name returns the breaker name used in metrics.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Call executes fn with circuit breaker protection. When the breaker is open
// fn is not called and the returned error wraps ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	t, err := cb.before()
	if err != nil {
		return err
	}
	err = fn()
	cb.after(t, err)
	return err
}

// admission records the state a call was admitted under.
type admission struct {
	halfOpen bool
}

func (cb *CircuitBreaker) before() (admission, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.timeout {
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.inFlight = 0
	}
	switch cb.state {
	case StateOpen:
		RecordCircuitBreakerState(cb.name, cb.state)
		return admission{}, fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	case StateHalfOpen:
		if cb.successCount+cb.inFlight >= cb.halfOpenMax {
			return admission{}, fmt.Errorf("%w: %s is half-open", ErrCircuitOpen, cb.name)
		}
		cb.inFlight++
		return admission{halfOpen: true}, nil
	}
	return admission{}, nil
}

// after settles a call. Only calls admitted as half-open trial requests
// touch inFlight and successCount; late results from earlier calls count
// toward failures alone.
func (cb *CircuitBreaker) after(t admission, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	trial := t.halfOpen && cb.state == StateHalfOpen
	if trial && cb.inFlight > 0 {
		cb.inFlight--
	}
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if trial || (cb.state == StateClosed && cb.maxFailures > 0 && cb.failures >= cb.maxFailures) {
			cb.state = StateOpen
		}
	} else {
		switch {
		case cb.state == StateClosed:
			cb.failures = 0
		case trial:
			cb.successCount++
			if cb.successCount >= cb.halfOpenMax {
				cb.state = StateClosed
				cb.successCount = 0
				cb.failures = 0
			}
		}
	}
	RecordCircuitBreakerState(cb.name, cb.state)
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetFailures returns the current failure count.
func (cb *CircuitBreaker) GetFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	cb.inFlight = 0
}

// IsOpen returns true if the circuit breaker is open.
func (cb *CircuitBreaker) IsOpen() bool { return cb.GetState() == StateOpen }

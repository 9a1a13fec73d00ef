package notify

import (
	"sync"
	"time"
)

// BreakerState is a circuit breaker position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig holds the parameters for a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenProbes   int
}

// CircuitBreaker shields one endpoint from repeated delivery to a dead
// target. Consecutive failures open the circuit; after the reset timeout a
// limited number of probe deliveries decide whether it closes again.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time
	config      BreakerConfig
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{
		state:  BreakerClosed,
		config: cfg,
	}
}

// Allow reports whether a delivery should be attempted now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && time.Since(cb.lastFailure) > cb.config.ResetTimeout {
		cb.state = BreakerHalfOpen
		cb.probes = 0
	}
	return cb.state != BreakerOpen
}

// RecordSuccess notes a successful delivery.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == BreakerHalfOpen {
		cb.probes++
		if cb.probes >= cb.config.HalfOpenProbes {
			cb.state = BreakerClosed
		}
		return
	}
	cb.state = BreakerClosed
}

// RecordFailure notes a failed delivery.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == BreakerHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = BreakerOpen
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

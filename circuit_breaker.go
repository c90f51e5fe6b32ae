package qsapi

import (
	"sync/atomic"
	"time"
)

// CircuitState is the circuit breaker state.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreakerConfig holds circuit breaker thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitBreaker trips open after consecutive failures and probes recovery
// through a half-open state. All state transitions use atomics; it is safe for
// concurrent use.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	lastFailure int64
	successes   int64
}

// NewCircuitBreaker creates a breaker, filling zero config fields with
// defaults (5 failures, 60s recovery, 2 successes to close).
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow reports whether a request may proceed, transitioning open → half-open
// once the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	now := time.Now().UnixNano()

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				return true
			}
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure counts a failure; in half-open state any failure reopens the
// circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.AddInt64(&cb.failures, 1)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess counts a success; enough successes in half-open state close
// the circuit and reset the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	if CircuitState(atomic.LoadInt64(&cb.state)) != StateHalfOpen {
		return
	}
	successes := atomic.AddInt64(&cb.successes, 1)
	if successes >= int64(cb.config.SuccessThreshold) {
		atomic.StoreInt64(&cb.state, int64(StateClosed))
		atomic.StoreInt64(&cb.failures, 0)
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

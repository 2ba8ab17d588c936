// Package resilience provides circuit breaker and provider failover primitives
// for the speech backends.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops a broken backend from being hammered on every practice request.
// [FallbackGroup] composes several instances of one provider type, each behind
// its own breaker, so a failing primary is bypassed in favour of the next
// healthy fallback. [STTFallback] and [TTSFallback] bind the group to the
// speech interfaces.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected with [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A
	// limited number of calls are let through; successes close the breaker and
	// any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
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

// MarshalText renders the state by name so health reports stay readable.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	Name string // log label, usually the provider name

	MaxFailures  int           // consecutive failures that open the breaker; 5
	ResetTimeout time.Duration // time spent open before probing; 30s
	HalfOpenMax  int           // successful probes that close it again; 3

	Now func() time.Time // clock override for tests
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CircuitBreaker guards calls to one backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last trip
	inFlight int       // unresolved half-open probes
	probesOK int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults()}
}

// Execute calls fn unless the breaker is open, in which case it returns
// [ErrCircuitOpen]. After ResetTimeout the breaker lets up to HalfOpenMax
// concurrent probes through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateClosed {
		return false, nil
	}
	if cb.inFlight >= cb.cfg.HalfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.inFlight++
	return true, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		if cb.inFlight > 0 {
			cb.inFlight--
		}
		// A concurrent probe may already have moved the breaker on.
		if cb.state != StateHalfOpen {
			return
		}
		if err != nil {
			cb.trip()
			return
		}
		cb.probesOK++
		if cb.probesOK >= cb.cfg.HalfOpenMax {
			cb.moveTo(StateClosed)
		}
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		cb.trip()
	}
}

// cooledDown reports whether an open breaker may start probing.
func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.cfg.Now()
	slog.Warn("circuit breaker opened", "name", cb.cfg.Name,
		"from", cb.state.String(), "consecutive_failures", cb.failures)
	cb.moveTo(StateOpen)
}

// moveTo switches state and clears the counters of the state being entered.
func (cb *CircuitBreaker) moveTo(s State) {
	cb.state = s
	switch s {
	case StateClosed:
		cb.failures = 0
		slog.Info("circuit breaker closed", "name", cb.cfg.Name)
	case StateHalfOpen:
		cb.probesOK = 0
		slog.Info("circuit breaker half-open", "name", cb.cfg.Name)
	}
}

// State reports the current state. An open breaker past its reset timeout
// reads as half-open even before the next Execute moves it there.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters. Probes still in flight
// are ignored when they finish.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.inFlight = 0
	cb.probesOK = 0
	cb.moveTo(StateClosed)
}

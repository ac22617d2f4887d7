// Package circuitbreaker stops calling a payment backend that keeps faulting.
// Declines are not faults and never trip a circuit.
package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold  = 5
	defaultResetTimeout      = 30 * time.Second
	defaultHalfOpenSuccesses = 2
)

// Config holds breaker thresholds. Zero values take the defaults.
type Config struct {
	FailureThreshold  int
	ResetTimeout      time.Duration
	HalfOpenSuccesses int
}

type backendState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
}

// CircuitBreaker tracks one circuit per backend name.
type CircuitBreaker struct {
	mu       sync.Mutex
	backends map[string]*backendState
	cfg      Config
	now      func() time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = defaultHalfOpenSuccesses
	}
	return &CircuitBreaker{
		backends: make(map[string]*backendState),
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// caller holds mu
func (cb *CircuitBreaker) stateFor(backend string) *backendState {
	bs, ok := cb.backends[backend]
	if !ok {
		bs = &backendState{state: Closed}
		cb.backends[backend] = bs
	}
	return bs
}

// AllowRequest reports whether backend may be called. An open circuit whose
// reset timeout elapsed moves to half-open and lets requests probe.
func (cb *CircuitBreaker) AllowRequest(backend string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	bs := cb.stateFor(backend)
	switch bs.state {
	case Open:
		if cb.now().Before(bs.openUntil) {
			return false
		}
		bs.state = HalfOpen
		bs.consecutiveSuccesses = 0
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordFailure(backend string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	bs := cb.stateFor(backend)
	switch bs.state {
	case Closed:
		bs.consecutiveFailures++
		if bs.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.trip(bs)
		}
	case HalfOpen:
		cb.trip(bs)
	}
}

func (cb *CircuitBreaker) RecordSuccess(backend string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	bs := cb.stateFor(backend)
	switch bs.state {
	case Closed:
		bs.consecutiveFailures = 0
	case HalfOpen:
		bs.consecutiveSuccesses++
		if bs.consecutiveSuccesses >= cb.cfg.HalfOpenSuccesses {
			bs.state = Closed
			bs.consecutiveFailures = 0
			bs.consecutiveSuccesses = 0
		}
	}
}

// State does not transition Open to HalfOpen; only AllowRequest does.
func (cb *CircuitBreaker) State(backend string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	bs, ok := cb.backends[backend]
	if !ok {
		return Closed
	}
	return bs.state
}

func (cb *CircuitBreaker) trip(bs *backendState) {
	bs.state = Open
	bs.openUntil = cb.now().Add(cb.cfg.ResetTimeout)
	bs.consecutiveFailures = 0
	bs.consecutiveSuccesses = 0
}

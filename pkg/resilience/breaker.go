// Package resilience provides the circuit breaker guarding the
// completion gateway: after a run of failures the breaker opens and
// calls fail immediately until a probe succeeds.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Config tunes the breaker.
type Config struct {
	// Name identifies the breaker in logs.
	Name string
	// MaxFailures is the consecutive-failure count that opens the
	// circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before admitting a
	// probe call.
	Timeout time.Duration
	// SuccessThreshold is the consecutive successes in half-open
	// needed to close again; 0 means 1.
	SuccessThreshold uint32
	// OnStateChange is called on every transition, if set.
	OnStateChange func(name string, from, to State)
}

func (c *Config) validate() error {
	if c.MaxFailures == 0 {
		return fmt.Errorf("MaxFailures must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	return nil
}

// CircuitBreaker tracks consecutive failures across calls.
type CircuitBreaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openUntil time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) (*CircuitBreaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}, nil
}

// Execute runs fn unless the circuit is open. A panic inside fn counts
// as a failure and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			cb.afterCall(false)
			panic(r)
		}
	}()
	err := fn(ctx)
	cb.afterCall(err == nil)
	return err
}

// State returns the current state, applying the open-timeout
// transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	if cb.state == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.successes = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		cb.transition(StateOpen)
	}
}

// refresh moves Open to HalfOpen once the timeout has elapsed. Caller
// holds the lock.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && time.Now().After(cb.openUntil) {
		cb.transition(StateHalfOpen)
	}
}

// transition changes state and fires the callback. Caller holds the
// lock.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openUntil = time.Now().Add(cb.cfg.Timeout)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

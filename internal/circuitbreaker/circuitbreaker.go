// Package circuitbreaker guards upstream weather hosts. A breaker opens after
// a run of consecutive failures and backs off exponentially; a registry hands
// out one breaker per upstream host.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Defaults to 3.
	FailureThreshold int
	// BaseBackoff is the open interval after the first trip. Each further
	// trip doubles it. Defaults to 30s.
	BaseBackoff time.Duration
	// MaxBackoff caps the doubled interval. Defaults to 300s.
	MaxBackoff time.Duration
	// OnStateChange is invoked outside the breaker lock on every transition.
	OnStateChange func(from, to State)

	now func() time.Time // test hook
}

// Breaker rejects calls to a failing upstream. While open it refuses
// immediately; once the backoff interval has elapsed it admits a single probe
// and either closes on success or reopens with a doubled interval.
type Breaker struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	failures  int // consecutive failures while closed
	tripCount int // consecutive trips without an intervening close
	openedAt  time.Time
	probing   bool
}

// New creates a Breaker with the given config, applying defaults for unset
// fields.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 300 * time.Second
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// backoff returns the current open interval: BaseBackoff doubled per
// consecutive trip, capped at MaxBackoff.
func (b *Breaker) backoff() time.Duration {
	d := b.cfg.BaseBackoff
	for i := 1; i < b.tripCount; i++ {
		d *= 2
		if d >= b.cfg.MaxBackoff {
			return b.cfg.MaxBackoff
		}
	}
	if d > b.cfg.MaxBackoff {
		return b.cfg.MaxBackoff
	}
	return d
}

// Call runs fn when the circuit admits it. While open (and within the backoff
// interval) it returns ErrOpen without invoking fn; the first call after the
// interval becomes the half-open probe and concurrent calls during the probe
// are rejected. fn's error is returned unchanged so callers can distinguish
// upstream failures from rejection.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.cfg.now().Sub(b.openedAt) < b.backoff() {
			b.mu.Unlock()
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
		b.mu.Unlock()
	default:
		b.mu.Unlock()
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure() {
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.tripCount++
		b.openedAt = b.cfg.now()
		b.transition(StateOpen)
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.failures = 0
			b.tripCount = 1
			b.openedAt = b.cfg.now()
			b.transition(StateOpen)
		}
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess() {
	b.failures = 0
	if b.state == StateHalfOpen {
		b.probing = false
		b.tripCount = 0
		b.transition(StateClosed)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil && from != to {
		go b.cfg.OnStateChange(from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

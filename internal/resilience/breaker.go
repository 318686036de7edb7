package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without any attempt when the breaker refuses a call.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker states.
const (
	StateClosed = iota
	StateOpen
	StateHalfOpen
)

// Breaker is a three-state circuit breaker. Consecutive failures in the
// closed state open it; after the reset window a single half-open probe
// decides whether it closes again.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	reset     time.Duration
	now       func() time.Time

	state    int
	failures int
	openedAt time.Time
	probing  bool

	onState func(name string, state int)
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the wall clock. Test use.
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if fn != nil {
			b.now = fn
		}
	}
}

// WithStateHook observes every state change (metrics).
func WithStateHook(fn func(name string, state int)) BreakerOption {
	return func(b *Breaker) { b.onState = fn }
}

// NewBreaker builds a breaker for one target service.
func NewBreaker(name string, threshold int, reset time.Duration, opts ...BreakerOption) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		reset:     reset,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports the current state.
func (b *Breaker) State() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs op if the breaker admits the call, recording the outcome.
func (b *Breaker) Do(op func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := op()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.reset {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	default: // StateHalfOpen: one probe at a time
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if success {
			b.failures = 0
			b.transition(StateClosed)
		} else {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) transition(state int) {
	b.state = state
	if b.onState != nil {
		b.onState(b.name, state)
	}
}

// Package breaker implements the three-state circuit breaker and
// exponential-backoff retry used by the Gate Pipeline's fail-open
// transport calls (L1 Scan, L2 Analyze, L4 PII). L3 Safety must never
// be wrapped by either: it fails closed on the first error.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the breaker's three states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned by Do/DoWithRetry when the breaker is OPEN and
// the reset timeout has not yet elapsed.
var ErrOpen = errors.New("breaker: circuit open")

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
)

// Breaker is a three-state (CLOSED/OPEN/HALF_OPEN) circuit breaker.
// It is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold overrides the default of 5 consecutive
// failures before tripping to OPEN.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithResetTimeout overrides the default 30s OPEN duration before a
// HALF_OPEN probe is allowed.
func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.resetTimeout = d }
}

// New builds a Breaker starting CLOSED.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		failureThreshold: defaultFailureThreshold,
		resetTimeout:     defaultResetTimeout,
		state:            Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// allow reports whether a call may proceed right now, promoting an
// OPEN breaker whose reset timeout has elapsed to HALF_OPEN and
// allowing exactly the probe call through.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = HalfOpen
		return true
	case HalfOpen:
		return false
	default:
		return true
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = Closed
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// Do runs fn if the breaker is not OPEN, recording the outcome.
// While OPEN, it returns ErrOpen synchronously without calling fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	if err := fn(ctx); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// DoWithRetry runs fn through the exponential-backoff retry policy if
// the breaker allows it, recording one success/failure outcome for
// the whole retried sequence.
func (b *Breaker) DoWithRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	if err := Retry(ctx, policy, fn); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

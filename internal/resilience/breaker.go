// Package resilience provides reliability patterns for outbound calls to
// the agent pipeline and the issue tracker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker implements a circuit breaker for protecting external calls.
// It opens after maxFailures consecutive failures and rejects calls until
// timeout elapses, then lets a single probe through.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	probing     bool // a half-open probe is in flight
	counts      func(error) bool
	now         func() time.Time
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		counts:      defaultCounts,
		now:         time.Now,
	}
}

// CountOnly restricts which errors count as failures. Errors rejected by
// pred are returned to the caller but leave the breaker state unchanged,
// e.g. a 400 from a healthy upstream.
func (b *Breaker) CountOnly(pred func(error) bool) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts = func(err error) bool { return defaultCounts(err) && pred(err) }
	return b
}

// caller cancellation says nothing about upstream health
func defaultCounts(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen. While half-open only one call at a time is let through.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.onSuccess()
	case b.counts(err):
		b.onFailure()
	case b.state == stateHalfOpen:
		if errors.Is(err, context.Canceled) {
			b.probing = false // the probe proved nothing; let the next call try
		} else {
			b.onSuccess() // the probe reached upstream, so it is healthy
		}
	}
	return err
}

// Do is Execute for context-aware calls. A context that is already done
// is reported without touching the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Execute(func() error { return fn(ctx) })
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.timeout
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return false
		}
		b.state = stateHalfOpen
		b.probing = true
		return true
	case stateHalfOpen:
		// one probe at a time; others fail fast until it reports back
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.probing = false
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.probing = false
	b.failures = 0
	b.state = stateClosed
}

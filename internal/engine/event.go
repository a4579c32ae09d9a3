package engine

import (
	"context"
	"sync"
	"time"
)

// Event is a one-shot broadcast: Set releases every current and future
// waiter and later Sets are no-ops. It is the Go shape of the barrier and
// abort signals the pipeline coordinates on.
type Event struct {
	once sync.Once
	ch   chan struct{}
}

// NewEvent returns an unset event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set fires the event. Safe to call from any goroutine, any number of
// times.
func (e *Event) Set() {
	e.once.Do(func() { close(e.ch) })
}

// IsSet reports whether the event has fired.
func (e *Event) IsSet() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the event fires or ctx is done, returning ctx.Err in
// the latter case.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d. It reports whether the event fired.
func (e *Event) WaitTimeout(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-e.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Done exposes the underlying channel for use in select statements.
func (e *Event) Done() <-chan struct{} {
	return e.ch
}

// Latch starts set and can only be cleared, once; it models conditions
// that begin true and fail permanently, such as the client connection
// staying alive.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch returns a set latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Clear unsets the latch permanently.
func (l *Latch) Clear() {
	l.once.Do(func() { close(l.ch) })
}

// IsSet reports whether the latch is still set.
func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return false
	default:
		return true
	}
}

// Cleared exposes a channel that closes when the latch clears.
func (l *Latch) Cleared() <-chan struct{} {
	return l.ch
}

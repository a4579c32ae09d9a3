package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEventSetReleasesWaiters(t *testing.T) {
	e := NewEvent()
	if e.IsSet() {
		t.Fatal("new event is set, want unset")
	}

	const waiters = 4
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Wait(context.Background())
		}()
	}

	e.Set()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Wait() error: %v", err)
		}
	}
	if !e.IsSet() {
		t.Error("event not set after Set()")
	}

	// Setting again must not panic or block.
	e.Set()

	// Waiters arriving after the fact return immediately.
	if err := e.Wait(context.Background()); err != nil {
		t.Errorf("Wait() after Set() error: %v", err)
	}
}

func TestEventWaitHonorsContext(t *testing.T) {
	e := NewEvent()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestEventWaitTimeout(t *testing.T) {
	e := NewEvent()
	if e.WaitTimeout(context.Background(), 5*time.Millisecond) {
		t.Error("WaitTimeout() = true on unset event, want false")
	}

	e.Set()
	if !e.WaitTimeout(context.Background(), 5*time.Millisecond) {
		t.Error("WaitTimeout() = false on set event, want true")
	}
}

func TestEventDoneSelectable(t *testing.T) {
	e := NewEvent()
	select {
	case <-e.Done():
		t.Fatal("Done() fired before Set()")
	default:
	}

	e.Set()
	select {
	case <-e.Done():
	default:
		t.Error("Done() not fired after Set()")
	}
}

func TestLatchClearIsPermanent(t *testing.T) {
	l := NewLatch()
	if !l.IsSet() {
		t.Fatal("new latch is cleared, want set")
	}
	select {
	case <-l.Cleared():
		t.Fatal("Cleared() fired before Clear()")
	default:
	}

	l.Clear()
	if l.IsSet() {
		t.Error("latch still set after Clear()")
	}
	select {
	case <-l.Cleared():
	default:
		t.Error("Cleared() not fired after Clear()")
	}

	// Clearing again must not panic.
	l.Clear()
	if l.IsSet() {
		t.Error("latch set again after second Clear()")
	}
}

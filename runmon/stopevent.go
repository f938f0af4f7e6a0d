package runmon

import (
	"sync"
	"sync/atomic"
	"time"
)

// StopEvent is a single-use boolean event that is safe to use across
// goroutines. Once set, it stays set. A zero-value StopEvent is not valid; use
// NewStopEvent.
type StopEvent struct {
	once sync.Once
	set  atomic.Bool
	ch   chan struct{}
}

// NewStopEvent creates a new unset event.
func NewStopEvent() *StopEvent {
	return &StopEvent{ch: make(chan struct{})}
}

// Set sets the event, waking up every waiter. Calling Set more than once does
// nothing.
func (ev *StopEvent) Set() {
	ev.once.Do(func() {
		ev.set.Store(true)
		close(ev.ch)
	})
}

// IsSet returns true if the event has been set.
func (ev *StopEvent) IsSet() bool {
	return ev.set.Load()
}

// Done returns a channel that is closed once the event is set.
func (ev *StopEvent) Done() <-chan struct{} {
	return ev.ch
}

// Wait blocks until the event is set or until timeout elapses. It returns true
// if the event is set.
func (ev *StopEvent) Wait(timeout time.Duration) bool {
	if ev.IsSet() {
		return true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ev.ch:
		return true
	case <-t.C:
		return false
	}
}

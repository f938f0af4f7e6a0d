package exec

import (
	"syscall"
	"time"
)

// Managed owns a started Process. A background goroutine reaps the process as
// soon as it exits, so the process never lingers as a zombie regardless of
// whether the owner is still watching it.
type Managed struct {
	Process

	done   chan struct{}
	status ExitStatus
}

// Manage starts reaping p. Wait must not be called on p afterwards; use
// WaitExit or Done instead.
func Manage(p Process) *Managed {
	m := &Managed{
		Process: p,
		done:    make(chan struct{}),
	}

	go func() {
		m.status = p.Wait()
		close(m.done)
	}()

	return m
}

// Done returns a channel that is closed once the process has been reaped.
func (m *Managed) Done() <-chan struct{} {
	return m.done
}

// Exited returns true if the process has already been reaped.
func (m *Managed) Exited() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// WaitExit blocks until the process is reaped and returns its exit status.
func (m *Managed) WaitExit() ExitStatus {
	<-m.done
	return m.status
}

// Stop asks the process to terminate with SIGTERM and waits up to timeout for
// it to exit. If it hasn't by then, it is SIGKILLed and waited on without a
// bound. The returned boolean is true if the kill was needed.
//
// Stop on an already exited process returns its status immediately.
func (m *Managed) Stop(timeout time.Duration) (ExitStatus, bool) {
	if m.Exited() {
		return m.status, false
	}

	if err := m.Signal(syscall.SIGTERM); err != nil {
		// The process either just exited or can't be signaled gracefully;
		// SIGKILL is the only thing left to try.
		m.Kill()
	}

	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-m.done:
		return m.status, false

	case <-after.C:
		// Still alive after the grace period. A SIGKILLed process exits
		// promptly, so the wait below is deliberately unbounded.
		m.Kill()
		<-m.done
		return m.status, true
	}
}

package exec

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

type fakeProcess struct {
	once  sync.Once
	stop  chan struct{}
	timer *time.Timer
	delay time.Duration

	pid  int
	exit atomic.Int32

	mu      sync.Mutex
	signals []os.Signal
}

const fakeRunning = -2

// FakeProcess is an in-memory Process used for testing.
type FakeProcess interface {
	Process
	// Signals returns every signal received so far, in order.
	Signals() []os.Signal
}

// NewFakeProcess creates a process that only idles for run. It is used for
// testing. If delay is larger than 0, then a catchable signal only takes
// effect after that delay, unless the process is SIGKILLed in the meantime.
func NewFakeProcess(run, delay time.Duration, pid int) FakeProcess {
	proc := &fakeProcess{
		stop:  make(chan struct{}),
		timer: time.NewTimer(run),
		delay: delay,
		pid:   pid,
	}
	proc.exit.Store(fakeRunning)
	return proc
}

func (fake *fakeProcess) PID() int { return fake.pid }

func (fake *fakeProcess) Signals() []os.Signal {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	return append([]os.Signal(nil), fake.signals...)
}

func (fake *fakeProcess) Signal(sig os.Signal) error {
	var status int32

	switch sig {
	case syscall.SIGINT, syscall.SIGTERM: // catchable
		status = 0
	case syscall.SIGKILL:
		status = -1
	default:
		return errors.Errorf("unknown signal %v", sig)
	}

	fake.mu.Lock()
	fake.signals = append(fake.signals, sig)
	fake.mu.Unlock()

	go func() {
		if fake.delay > 0 && sig != syscall.SIGKILL {
			select {
			case <-time.After(fake.delay):
			case <-fake.stop:
				return
			}
		}

		if !fake.exit.CompareAndSwap(fakeRunning, status) {
			return
		}

		close(fake.stop)
		fake.timer.Stop()
	}()

	return nil
}

func (fake *fakeProcess) Kill() error {
	return fake.Signal(syscall.SIGKILL)
}

func (fake *fakeProcess) Wait() ExitStatus {
	fake.once.Do(func() {
		select {
		case <-fake.stop:
		case <-fake.timer.C:
			fake.exit.CompareAndSwap(fakeRunning, 0)
		}
	})

	return ExitStatus{
		PID:  fake.pid,
		Code: int(fake.exit.Load()),
	}
}

package runmon

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"git.unix.lgbt/diamondburned/runmon/runmon/exec"
	"github.com/pkg/errors"
)

// SamplerState is the lifecycle state of a Sampler.
type SamplerState int32

const (
	SamplerNotStarted SamplerState = iota
	SamplerRunning
	SamplerStopRequested
	SamplerTerminated
)

// String returns a human-readable state name.
func (s SamplerState) String() string {
	switch s {
	case SamplerNotStarted:
		return "not-started"
	case SamplerRunning:
		return "running"
	case SamplerStopRequested:
		return "stop-requested"
	case SamplerTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// SamplerConfig describes what a Sampler runs and where its output goes.
type SamplerConfig struct {
	Command  []string
	Output   string
	Interval time.Duration
}

// SamplerResult describes how a sampler run ended. It is only meaningful once
// Run has returned.
type SamplerResult struct {
	PID      int
	ExitCode int
	// Killed is true if the sampler ignored SIGTERM for longer than
	// WaitTimeout and had to be SIGKILLed.
	Killed bool
	// Early is true if the sampler exited before it was asked to stop.
	Early bool
	// Writes is the number of writes seen on the output file.
	Writes int
}

// stderrTail is the amount of the sampler's stderr that is kept around to be
// journaled if it exits abnormally.
const stderrTail = 4096

// Sampler supervises the sampling tool for the duration of a session. Run
// blocks on its own goroutine until RequestStop is called, then tears the
// sampling tool down, SIGKILLing it if it takes longer than WaitTimeout to exit.
type Sampler struct {
	// WaitTimeout is the time to wait for the sampler to gracefully exit until
	// forcefully killing it. It defaults to the sampling interval.
	WaitTimeout time.Duration

	cfg SamplerConfig
	j   Journaler

	stop    *StopEvent
	started chan struct{}
	state   atomic.Int32

	// owned by the Run goroutine
	result SamplerResult

	startProc func(argv []string, stdout, stderr io.Writer) (exec.Process, error)
}

// NewSampler creates a new sampler. Nothing is started until Run is called.
func NewSampler(cfg SamplerConfig, j Journaler) *Sampler {
	return &Sampler{
		WaitTimeout: cfg.Interval,

		cfg:     cfg,
		j:       j,
		stop:    NewStopEvent(),
		started: make(chan struct{}),

		startProc: func(argv []string, stdout, stderr io.Writer) (exec.Process, error) {
			return exec.StartCommand(argv, exec.Options{
				Stdout: stdout,
				Stderr: stderr,
			})
		},
	}
}

// State returns the sampler's current state.
func (s *Sampler) State() SamplerState {
	return SamplerState(s.state.Load())
}

// Started returns a channel that is closed once the sampling tool has been
// spawned. It is never closed if Run fails to spawn it.
func (s *Sampler) Started() <-chan struct{} {
	return s.started
}

// RequestStop asks Run to tear down the sampling tool and return. It can be
// called from any goroutine, and calling it more than once does nothing.
func (s *Sampler) RequestStop() {
	s.state.CompareAndSwap(int32(SamplerRunning), int32(SamplerStopRequested))
	s.stop.Set()
}

// Result returns how the sampler ended. It must only be called after Run has
// returned.
func (s *Sampler) Result() SamplerResult {
	return s.result
}

// Run opens and truncates the output file, spawns the sampling tool into it
// and blocks until RequestStop is called and the tool has been reaped. An error
// is only returned if the sampling tool could not be started; it is never
// retried.
func (s *Sampler) Run() error {
	if !s.state.CompareAndSwap(int32(SamplerNotStarted), int32(SamplerRunning)) {
		return errors.New("sampler already started")
	}

	// Linux-only: Pdeathsig is bound to the thread that spawned the child, so
	// this goroutine keeps its thread until the child has been reaped.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer s.state.Store(int32(SamplerTerminated))

	f, err := os.Create(s.cfg.Output)
	if err != nil {
		return errors.Wrap(err, "failed to open output file")
	}
	defer s.closeOutput(f)

	// Watch before spawning so the first write isn't missed.
	watcher, err := WatchOutput(s.cfg.Output, s.j)
	if err != nil {
		s.j.Write(&EventWarning{
			Component: "sampler",
			Error:     fmt.Sprintf("not watching output because: %v", err),
		})
	}
	defer watcher.Close()

	var stderr tailBuffer
	stderr.max = stderrTail

	p, err := s.startProc(s.cfg.Command, f, &stderr)
	if err != nil {
		s.j.Write(&EventSamplerSpawnError{
			Command: s.cfg.Command,
			Reason:  err.Error(),
		})
		return errors.Wrap(err, "failed to start sampler")
	}

	proc := exec.Manage(p)
	s.result.PID = p.PID()

	s.j.Write(&EventSamplerSpawned{
		PID:     p.PID(),
		Command: s.cfg.Command,
		Output:  s.cfg.Output,
	})

	close(s.started)

	s.waitStop(proc, watcher, &stderr)
	s.result.Writes = watcher.Writes()

	if s.result.Early {
		// Already reaped and journaled.
		return nil
	}

	status, killed := proc.Stop(s.WaitTimeout)
	s.result.ExitCode = status.Code
	s.result.Killed = killed

	s.j.Write(s.exitedEvent(status, killed, false, &stderr))
	return nil
}

// waitStop blocks until the stop event is set. Meanwhile, it forwards output
// events to the watcher and notices if the sampling tool dies on its own.
func (s *Sampler) waitStop(proc *exec.Managed, w *OutputWatcher, stderr *tailBuffer) {
	exited := proc.Done()
	events := w.Events()
	errs := w.Errors()

	for {
		select {
		case <-s.stop.Done():
			return

		case <-exited:
			exited = nil

			status := proc.WaitExit()
			s.result.Early = true
			s.result.ExitCode = status.Code

			// Not fatal: whatever was sampled so far is still useful, and the
			// session must go on until the workload is done.
			s.j.Write(s.exitedEvent(status, false, true, stderr))

		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.Handle(evt)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.HandleError(err)
		}
	}
}

func (s *Sampler) exitedEvent(status exec.ExitStatus, killed, early bool, stderr *tailBuffer) *EventSamplerExited {
	ev := EventSamplerExited{
		PID:      status.PID,
		ExitCode: status.Code,
		Killed:   killed,
		Early:    early,
	}

	if status.Error != nil {
		ev.Error = status.Error.Error()
	}

	// Stderr is only interesting if the sampler didn't exit because we asked.
	if early || killed {
		ev.Stderr = strings.TrimSpace(stderr.String())
	}

	return &ev
}

func (s *Sampler) closeOutput(f *os.File) {
	if err := f.Sync(); err != nil {
		s.j.Write(&EventWarning{
			Component: "sampler",
			Error:     "failed to sync output: " + err.Error(),
		})
	}

	if err := f.Close(); err != nil {
		s.j.Write(&EventWarning{
			Component: "sampler",
			Error:     "failed to close output: " + err.Error(),
		})
	}
}

// tailBuffer is an io.Writer that only keeps the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

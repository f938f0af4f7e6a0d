// Package exec provides an abstraction around package os/exec's Cmd for easier
// testing, as well as a Managed wrapper that reaps a process in the background
// and stops it with an escalating signal sequence.
package exec

import (
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a command process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// ExitStatus is a process' exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 if terminated by a signal
	Error error
}

// Success returns true if the process exited on its own with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Error == nil
}

// Options controls how StartCommand spawns a process.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
	Env    []string

	// Foreground keeps the process in runmon's process group, so that signals
	// from the terminal reach it directly. Otherwise, the process leads its own
	// group and every signal is delivered to the whole group.
	Foreground bool
}

type process struct {
	cmd   *exec.Cmd
	group bool
}

var _ Process = (*process)(nil)

// StartCommand starts argv as a new process. The first element is looked up in
// $PATH.
//
// Linux-only: the child receives SIGTERM when the OS thread that started it
// exits. Callers that care about this should lock their goroutine to its thread
// for the lifetime of the process.
// See https://github.com/golang/go/issues/27505.
func StartCommand(argv []string, opts Options) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   !opts.Foreground,
		Pdeathsig: syscall.SIGTERM,
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %q", argv[0])
	}

	return &process{cmd: cmd, group: !opts.Foreground}, nil
}

func (proc *process) PID() int {
	return proc.cmd.Process.Pid
}

// Signal sends sig to the process. If the process leads its own group, then the
// whole group is signaled, so children spawned by it are not left behind.
func (proc *process) Signal(sig os.Signal) error {
	if !proc.group {
		return proc.cmd.Process.Signal(sig)
	}

	s, ok := sig.(syscall.Signal)
	if !ok {
		return errors.Errorf("unsupported signal %v", sig)
	}

	// A negative PID addresses the process group led by that PID.
	return unix.Kill(-proc.cmd.Process.Pid, s)
}

func (proc *process) Kill() error {
	return proc.Signal(syscall.SIGKILL)
}

// Wait waits for the process to exit. It must only be called once.
func (proc *process) Wait() ExitStatus {
	err := proc.cmd.Wait()

	status := ExitStatus{
		PID:   proc.cmd.Process.Pid,
		Code:  -1,
		Error: err,
	}

	if proc.cmd.ProcessState != nil {
		status.Code = proc.cmd.ProcessState.ExitCode()
	}

	return status
}

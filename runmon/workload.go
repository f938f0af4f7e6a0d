package runmon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.unix.lgbt/diamondburned/runmon/runmon/exec"
	"github.com/pkg/errors"
)

// WorkloadKind is the closed set of workload types runmon can launch. Each kind
// decides which arguments get forwarded to the workload.
type WorkloadKind int

const (
	// WorkloadScript is an interpreted script (.py). It receives positional
	// arguments followed by named arguments as --key=value.
	WorkloadScript WorkloadKind = iota + 1
	// WorkloadShell is a shell script (.sh). It only receives positional
	// arguments unless Interpreters.ForwardNamedToShell is set.
	WorkloadShell
)

// String returns the kind's name.
func (k WorkloadKind) String() string {
	switch k {
	case WorkloadScript:
		return "script"
	case WorkloadShell:
		return "shell"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ErrUnsupportedWorkload is returned if the workload's extension doesn't map to
// any WorkloadKind.
var ErrUnsupportedWorkload = errors.New("unsupported workload type")

// KindOf returns the workload kind from the path's extension.
func KindOf(path string) (WorkloadKind, error) {
	switch filepath.Ext(path) {
	case ".py":
		return WorkloadScript, nil
	case ".sh":
		return WorkloadShell, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedWorkload, "%s", path)
	}
}

// Workload is a resolved workload: a path, its kind and the interpreter that
// runs it.
type Workload struct {
	Path         string
	Kind         WorkloadKind
	Interpreters Interpreters
}

// NewWorkload resolves the kind of the workload at path.
func NewWorkload(path string, interp Interpreters) (Workload, error) {
	kind, err := KindOf(path)
	if err != nil {
		return Workload{}, err
	}

	return Workload{
		Path:         path,
		Kind:         kind,
		Interpreters: interp,
	}, nil
}

// Argv returns the full command line used to launch the workload with args.
func (w Workload) Argv(args Args) []string {
	var argv []string

	switch w.Kind {
	case WorkloadScript:
		argv = append(argv, w.Interpreters.Script...)
		argv = append(argv, w.Path)
		argv = append(argv, args.Positional...)
		argv = append(argv, args.NamedTokens()...)

	case WorkloadShell:
		argv = append(argv, w.Interpreters.Shell...)
		argv = append(argv, w.Path)
		argv = append(argv, args.Positional...)
		if w.Interpreters.ForwardNamedToShell {
			argv = append(argv, args.NamedTokens()...)
		}
	}

	return argv
}

// WorkloadResult describes how a workload run ended.
type WorkloadResult struct {
	PID      int
	ExitCode int // -1 if it never started or was terminated by a signal
	Duration time.Duration
	// Err is non-nil if the workload failed to start or exited unsuccessfully.
	Err error
}

// Failed returns true if the workload did not succeed.
func (r WorkloadResult) Failed() bool {
	return r.Err != nil
}

// WorkloadRunner runs a workload to completion. Failures of the workload itself
// are reported in the result and the journal, never returned as errors, so
// that the caller always gets to tear down the sampler.
type WorkloadRunner struct {
	// StopTimeout is how long a canceled workload gets to exit after SIGTERM
	// before being SIGKILLed.
	StopTimeout time.Duration

	j         Journaler
	startProc func(argv []string) (exec.Process, error)
}

// NewWorkloadRunner creates a runner that launches workloads attached to
// runmon's own standard streams.
func NewWorkloadRunner(j Journaler) *WorkloadRunner {
	return &WorkloadRunner{
		StopTimeout: time.Second,
		j:           j,
		startProc: func(argv []string) (exec.Process, error) {
			return exec.StartCommand(argv, exec.Options{
				Stdin:      os.Stdin,
				Stdout:     os.Stdout,
				Stderr:     os.Stderr,
				Foreground: true,
			})
		},
	}
}

// Run starts the workload and blocks until it exits. If ctx is canceled, the
// workload is stopped.
func (r *WorkloadRunner) Run(ctx context.Context, w Workload, args Args) WorkloadResult {
	argv := w.Argv(args)
	start := time.Now()

	p, err := r.startProc(argv)
	if err != nil {
		r.j.Write(&EventWorkloadSpawnError{
			Argv:   argv,
			Reason: err.Error(),
		})

		return WorkloadResult{
			ExitCode: -1,
			Err:      errors.Wrap(err, "failed to start workload"),
		}
	}

	r.j.Write(&EventWorkloadStarted{
		PID:  p.PID(),
		Kind: w.Kind.String(),
		Argv: argv,
	})

	proc := exec.Manage(p)

	var status exec.ExitStatus
	select {
	case <-proc.Done():
		status = proc.WaitExit()
	case <-ctx.Done():
		status, _ = proc.Stop(r.StopTimeout)
	}

	result := WorkloadResult{
		PID:      status.PID,
		ExitCode: status.Code,
		Duration: time.Since(start),
	}

	if !status.Success() {
		cause := status.Error
		if cause == nil {
			cause = errors.Errorf("exit code %d", status.Code)
		}
		result.Err = errors.Wrapf(cause, "workload %s failed", w.Path)
	}

	ev := EventWorkloadExited{
		PID:      result.PID,
		ExitCode: result.ExitCode,
		Duration: result.Duration,
	}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}

	r.j.Write(&ev)

	return result
}

package runmon

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionSamplingStarted
	SessionWorkloadRunning
	SessionStopRequested
	SessionJoined
	SessionDone
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionSamplingStarted:
		return "sampling-started"
	case SessionWorkloadRunning:
		return "workload-running"
	case SessionStopRequested:
		return "stop-requested"
	case SessionJoined:
		return "joined"
	case SessionDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// SessionConfig describes a single monitored workload run.
type SessionConfig struct {
	Workload string
	Output   string
	Interval time.Duration
	// Args is forwarded to the workload according to its kind.
	Args []string
	// Config is the sampler and interpreter configuration. Nil means
	// DefaultConfig.
	Config *Config
}

// Report summarizes a finished session.
type Report struct {
	Session  string
	Workload WorkloadResult
	Sampler  SamplerResult
	Duration time.Duration
}

// Session runs one workload while sampling resource usage in the background.
// A session is single-use.
type Session struct {
	ID string

	cfg   SessionConfig
	j     Journaler
	state atomic.Int32
	ran   atomic.Bool

	runner     *WorkloadRunner
	newSampler func(SamplerConfig) *Sampler
}

// NewSession validates cfg and creates a new idle session.
func NewSession(cfg SessionConfig, j Journaler) (*Session, error) {
	if cfg.Interval <= 0 {
		return nil, errors.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if cfg.Output == "" {
		return nil, errors.New("missing output file path")
	}
	if cfg.Workload == "" {
		return nil, errors.New("missing workload path")
	}
	if cfg.Config == nil {
		cfg.Config = DefaultConfig()
	}

	runner := NewWorkloadRunner(j)
	runner.StopTimeout = cfg.Interval

	return &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		j:      j,
		runner: runner,
		newSampler: func(scfg SamplerConfig) *Sampler {
			return NewSampler(scfg, j)
		},
	}, nil
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Run runs the session to completion: it starts the sampler, runs the workload,
// waits one more interval so trailing samples are captured, then stops and
// joins the sampler.
//
// An error is returned if the workload type is unsupported, in which case
// nothing is started, or if the sampler can't be started, in which case the
// workload isn't either. A failing workload is not an error; it is reported in
// the returned Report instead.
//
// Canceling ctx stops the workload and cuts the settling delay short, but the
// sampler is still stopped and joined before Run returns.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if s.ran.Swap(true) {
		return nil, errors.New("session already ran")
	}

	s.j.Write(&EventSessionStarted{
		Session:  s.ID,
		Workload: s.cfg.Workload,
		Output:   s.cfg.Output,
		Interval: s.cfg.Interval,
	})

	w, err := NewWorkload(s.cfg.Workload, s.cfg.Config.Interpreters)
	if err != nil {
		return nil, s.abort(err)
	}

	args := ClassifyArgs(s.cfg.Args)
	start := time.Now()

	sampler := s.newSampler(SamplerConfig{
		Command:  s.cfg.Config.Sampler.Command,
		Output:   s.cfg.Output,
		Interval: s.cfg.Interval,
	})

	samplerDone := make(chan error, 1)
	go func() { samplerDone <- sampler.Run() }()

	select {
	case <-sampler.Started():
	case err := <-samplerDone:
		// Run only returns before Started if the sampler never spawned.
		return nil, s.abort(errors.Wrap(err, "sampling failed"))
	}

	s.setState(SessionSamplingStarted)

	report := &Report{Session: s.ID}
	report.Workload = s.supervise(ctx, w, args, sampler, samplerDone)
	report.Sampler = sampler.Result()
	report.Duration = time.Since(start)

	s.setState(SessionDone)
	s.j.Write(&EventSessionFinished{
		Session: s.ID,
		State:   SessionDone.String(),
	})

	return report, nil
}

// supervise runs the workload while the sampler is running. The sampler is
// always stopped and joined before supervise returns, even if the workload run
// panics.
func (s *Session) supervise(
	ctx context.Context, w Workload, args Args, sampler *Sampler, samplerDone <-chan error) WorkloadResult {

	defer func() {
		s.setState(SessionStopRequested)
		s.j.Write(&EventStopRequested{Session: s.ID})
		sampler.RequestStop()

		if err := <-samplerDone; err != nil {
			s.j.Write(&EventWarning{
				Component: "sampler",
				Error:     err.Error(),
			})
		}

		s.setState(SessionJoined)
	}()

	s.setState(SessionWorkloadRunning)
	result := s.runner.Run(ctx, w, args)

	// Settle so that at least one more sample lands after the workload.
	settle := time.NewTimer(s.cfg.Interval)
	defer settle.Stop()

	select {
	case <-settle.C:
	case <-ctx.Done():
	}

	return result
}

func (s *Session) abort(err error) error {
	s.j.Write(&EventSessionFinished{
		Session: s.ID,
		State:   s.State().String(),
		Error:   err.Error(),
	})
	return err
}

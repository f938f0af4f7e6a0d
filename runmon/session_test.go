package runmon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.unix.lgbt/diamondburned/runmon/runmon/exec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopSampler prints a line every 50ms, standing in for dstat.
var loopSampler = []string{"sh", "-c", "while :; do echo sample; sleep 0.05; done"}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sampler.Command = loopSampler
	cfg.Interpreters = shInterpreters
	return cfg
}

func TestNewSession(t *testing.T) {
	valid := SessionConfig{
		Workload: "job.sh",
		Output:   "out.txt",
		Interval: time.Second,
	}

	s, err := NewSession(valid, DiscardJournal)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, SessionIdle, s.State())
	assert.Equal(t, DefaultSamplerCommand, s.cfg.Config.Sampler.Command)

	invalid := []func(*SessionConfig){
		func(c *SessionConfig) { c.Interval = 0 },
		func(c *SessionConfig) { c.Interval = -time.Second },
		func(c *SessionConfig) { c.Output = "" },
		func(c *SessionConfig) { c.Workload = "" },
	}

	for i, mutate := range invalid {
		cfg := valid
		mutate(&cfg)

		_, err := NewSession(cfg, DiscardJournal)
		assert.Error(t, err, "case %d", i)
	}
}

func TestSessionFake(t *testing.T) {
	newFakeSession := func(t *testing.T, j Journaler, workload string) (*Session, *int) {
		t.Helper()

		s, err := NewSession(SessionConfig{
			Workload: workload,
			Output:   filepath.Join(t.TempDir(), "samples.txt"),
			Interval: time.Millisecond,
			Config:   testConfig(),
		}, j)
		require.NoError(t, err)

		samplers := new(int)
		s.newSampler = func(cfg SamplerConfig) *Sampler {
			*samplers++

			// The interval is tiny to keep the settling delay short; don't let
			// it race the fake's SIGTERM handling.
			smp := fakeSampler(cfg, j, forever, 0)
			smp.WaitTimeout = time.Minute
			return smp
		}
		s.runner.startProc = func([]string) (exec.Process, error) {
			return exec.NewFakeProcess(time.Millisecond, 0, 100), nil
		}

		return s, samplers
	}

	t.Run("lifecycle", func(t *testing.T) {
		j := mockJournal{}
		s, _ := newFakeSession(t, &j, "job.sh")

		report, err := s.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, SessionDone, s.State())
		assert.Equal(t, s.ID, report.Session)
		assert.False(t, report.Workload.Failed())
		assert.Equal(t, 100, report.Workload.PID)
		assert.Equal(t, 1, report.Sampler.PID)

		j.Verify(t, true, []Event{
			&EventSessionStarted{Workload: "job.sh", Output: s.cfg.Output, Interval: time.Millisecond},
			&EventSamplerSpawned{PID: 1, Command: loopSampler, Output: s.cfg.Output},
			&EventWorkloadStarted{PID: 100, Kind: "shell", Argv: []string{"sh", "job.sh"}},
			&EventWorkloadExited{PID: 100, ExitCode: 0},
			&EventStopRequested{},
			&EventSamplerExited{PID: 1, ExitCode: 0},
			&EventSessionFinished{State: "done"},
		})
	})

	t.Run("run twice", func(t *testing.T) {
		s, _ := newFakeSession(t, DiscardJournal, "job.sh")

		_, err := s.Run(context.Background())
		require.NoError(t, err)

		_, err = s.Run(context.Background())
		assert.Error(t, err)
	})

	t.Run("unsupported workload", func(t *testing.T) {
		j := mockJournal{}
		s, samplers := newFakeSession(t, &j, "app.exe")

		_, err := s.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedWorkload))
		assert.Zero(t, *samplers, "sampler must not be started")
		assert.Equal(t, SessionIdle, s.State())

		assert.NoFileExists(t, s.cfg.Output)

		j.Verify(t, true, []Event{
			&EventSessionStarted{Workload: "app.exe", Output: s.cfg.Output, Interval: time.Millisecond},
			&EventSessionFinished{State: "idle", Error: err.Error()},
		})
	})

	t.Run("sampler spawn failure", func(t *testing.T) {
		j := mockJournal{}
		s, _ := newFakeSession(t, &j, "job.sh")

		s.newSampler = func(cfg SamplerConfig) *Sampler {
			smp := NewSampler(cfg, &j)
			smp.startProc = func([]string, io.Writer, io.Writer) (exec.Process, error) {
				return nil, errors.New("dstat: command not found")
			}
			return smp
		}

		var workloads int
		s.runner.startProc = func([]string) (exec.Process, error) {
			workloads++
			return exec.NewFakeProcess(0, 0, 100), nil
		}

		_, err := s.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dstat: command not found")
		assert.Zero(t, workloads, "workload must not run unmonitored")
	})

	t.Run("stubborn sampler", func(t *testing.T) {
		j := mockJournal{}
		s, _ := newFakeSession(t, &j, "job.py")

		s.newSampler = func(cfg SamplerConfig) *Sampler {
			return fakeSampler(cfg, &j, forever, forever)
		}

		report, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, report.Sampler.Killed)
		assert.Equal(t, SessionDone, s.State())
	})
}

func TestSessionEndToEnd(t *testing.T) {
	const interval = 100 * time.Millisecond

	newSession := func(t *testing.T, j Journaler, script string, args ...string) *Session {
		t.Helper()

		s, err := NewSession(SessionConfig{
			Workload: script,
			Output:   filepath.Join(t.TempDir(), "samples.txt"),
			Interval: interval,
			Args:     args,
			Config:   testConfig(),
		}, j)
		require.NoError(t, err)
		return s
	}

	writeWorkload := func(t *testing.T, name, content string) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0700))
		return path
	}

	t.Run("successful workload", func(t *testing.T) {
		j := mockJournal{}
		script := writeWorkload(t, "sleep.py", "sleep 0.5\nexit 0\n")
		s := newSession(t, &j, script)

		report, err := s.Run(context.Background())
		require.NoError(t, err)

		assert.False(t, report.Workload.Failed())
		assert.GreaterOrEqual(t, int64(report.Duration), int64(500*time.Millisecond+interval))
		assert.False(t, report.Sampler.Killed)
		assert.False(t, report.Sampler.Early)

		stat, err := os.Stat(s.cfg.Output)
		require.NoError(t, err)
		assert.NotZero(t, stat.Size())
	})

	t.Run("failing workload", func(t *testing.T) {
		j := mockJournal{}
		script := writeWorkload(t, "fail.sh", "sleep 0.2\nexit 1\n")
		s := newSession(t, &j, script)

		report, err := s.Run(context.Background())
		require.NoError(t, err, "a failing workload must not fail the session")

		assert.True(t, report.Workload.Failed())
		assert.Equal(t, 1, report.Workload.ExitCode)
		assert.Equal(t, SessionDone, s.State())

		b, err := os.ReadFile(s.cfg.Output)
		require.NoError(t, err)
		assert.Contains(t, string(b), "sample")

		var exited bool
		for _, ev := range j.Journals() {
			if ev, ok := ev.(*EventSamplerExited); ok {
				exited = true
				assert.False(t, ev.Early)
			}
		}
		assert.True(t, exited, "sampler must be torn down")
	})

	t.Run("forwarded arguments", func(t *testing.T) {
		j := mockJournal{}
		script, argsFile := writeScript(t, "args.py", 0)
		s := newSession(t, &j, script, "a", "--k=v", "b")

		report, err := s.Run(context.Background())
		require.NoError(t, err)
		require.NoError(t, report.Workload.Err)

		assert.Equal(t, []string{"a", "b", "--k=v"}, readLines(t, argsFile))
	})

	t.Run("canceled", func(t *testing.T) {
		j := mockJournal{}
		script := writeWorkload(t, "forever.sh", "exec sleep 60\n")
		s := newSession(t, &j, script)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		report, err := s.Run(ctx)
		require.NoError(t, err)

		assert.True(t, report.Workload.Failed())
		assert.Less(t, int64(time.Since(start)), int64(10*time.Second))
		assert.Equal(t, SessionDone, s.State())
	})
}

package runmon

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds a session's summary metrics. Each session gets its own
// registry, since runmon exits right after a session and only ever exports
// them into a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	sessionDuration  prometheus.Gauge
	workloadDuration prometheus.Gauge
	workloadExitCode prometheus.Gauge
	workloadFailed   prometheus.Gauge
	samplerKilled    prometheus.Gauge
	samplerEarly     prometheus.Gauge
	outputWrites     prometheus.Gauge
}

// NewMetrics creates the metrics for a session running workload.
func NewMetrics(workload string) *Metrics {
	labels := prometheus.Labels{"workload": filepath.Base(workload)}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		sessionDuration:  gauge("runmon_session_duration_seconds", "Wall time from sampler start to sampler join."),
		workloadDuration: gauge("runmon_workload_duration_seconds", "Wall time the workload ran for."),
		workloadExitCode: gauge("runmon_workload_exit_code", "Exit code of the workload, -1 if it never started or was signaled."),
		workloadFailed:   gauge("runmon_workload_failed", "1 if the workload failed."),
		samplerKilled:    gauge("runmon_sampler_killed", "1 if the sampler had to be SIGKILLed."),
		samplerEarly:     gauge("runmon_sampler_exited_early", "1 if the sampler exited before it was asked to stop."),
		outputWrites:     gauge("runmon_sampler_output_writes", "Writes observed on the sampler output file."),
	}

	m.registry.MustRegister(
		m.sessionDuration,
		m.workloadDuration,
		m.workloadExitCode,
		m.workloadFailed,
		m.samplerKilled,
		m.samplerEarly,
		m.outputWrites,
	)

	return m
}

// Observe records a finished session's report.
func (m *Metrics) Observe(r *Report) {
	m.sessionDuration.Set(r.Duration.Seconds())
	m.workloadDuration.Set(r.Workload.Duration.Seconds())
	m.workloadExitCode.Set(float64(r.Workload.ExitCode))
	m.workloadFailed.Set(boolGauge(r.Workload.Failed()))
	m.samplerKilled.Set(boolGauge(r.Sampler.Killed))
	m.samplerEarly.Set(boolGauge(r.Sampler.Early))
	m.outputWrites.Set(float64(r.Sampler.Writes))
}

// Gatherer returns the registry holding the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile atomically writes the metrics in the text exposition format,
// as expected by node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrap(err, "failed to write metrics textfile")
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

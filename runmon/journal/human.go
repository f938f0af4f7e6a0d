package journal

import (
	"encoding/json"

	"git.unix.lgbt/diamondburned/runmon/runmon"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HumanWriter is a journaler that logs events through a logrus logger. Event
// data becomes the entry's fields and the event type its message.
type HumanWriter struct {
	log logrus.FieldLogger
}

var _ runmon.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a new HumanWriter. If log is nil, then the standard
// logrus logger is used.
func NewHumanWriter(log logrus.FieldLogger) *HumanWriter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HumanWriter{log}
}

// Write logs the event at a level that depends on how bad it is.
func (w *HumanWriter) Write(ev runmon.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	var fields logrus.Fields
	if err := json.Unmarshal(b, &fields); err != nil {
		return errors.Wrap(err, "failed to unmarshal event fields")
	}

	formatDurations(ev, fields)

	entry := w.log.WithFields(fields)

	switch eventLevel(ev) {
	case logrus.ErrorLevel:
		entry.Error(ev.Type())
	case logrus.WarnLevel:
		entry.Warn(ev.Type())
	case logrus.DebugLevel:
		entry.Debug(ev.Type())
	default:
		entry.Info(ev.Type())
	}

	return nil
}

// formatDurations replaces the nanosecond counts that durations marshal to with
// their readable form.
func formatDurations(ev runmon.Event, fields logrus.Fields) {
	switch ev := ev.(type) {
	case *runmon.EventSessionStarted:
		fields["interval"] = ev.Interval.String()
	case *runmon.EventWorkloadExited:
		fields["duration"] = ev.Duration.String()
	}
}

func eventLevel(ev runmon.Event) logrus.Level {
	switch ev := ev.(type) {
	case *runmon.EventWarning:
		return logrus.WarnLevel
	case *runmon.EventSamplerSpawnError, *runmon.EventWorkloadSpawnError:
		return logrus.ErrorLevel
	case *runmon.EventSamplerExited:
		if !ev.IsGraceful() {
			return logrus.WarnLevel
		}
	case *runmon.EventWorkloadExited:
		if ev.ExitCode != 0 {
			return logrus.ErrorLevel
		}
	case *runmon.EventSessionFinished:
		if ev.Error != "" {
			return logrus.ErrorLevel
		}
	case *runmon.EventSamplerOutput, *runmon.EventStopRequested:
		return logrus.DebugLevel
	}

	return logrus.InfoLevel
}

package runmon

import "time"

// eventType describes an event type.
type eventType = string

const (
	eventWarning            eventType = "warning"
	eventSessionStarted     eventType = "session started"
	eventSessionFinished    eventType = "session finished"
	eventSamplerSpawned     eventType = "sampler spawned"
	eventSamplerSpawnError  eventType = "sampler spawn error"
	eventSamplerOutput      eventType = "sampler output"
	eventSamplerExited      eventType = "sampler exited"
	eventWorkloadStarted    eventType = "workload started"
	eventWorkloadSpawnError eventType = "workload spawn error"
	eventWorkloadExited     eventType = "workload exited"
	eventStopRequested      eventType = "stop requested"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventSessionStarted:
		return &EventSessionStarted{}
	case eventSessionFinished:
		return &EventSessionFinished{}
	case eventSamplerSpawned:
		return &EventSamplerSpawned{}
	case eventSamplerSpawnError:
		return &EventSamplerSpawnError{}
	case eventSamplerOutput:
		return &EventSamplerOutput{}
	case eventSamplerExited:
		return &EventSamplerExited{}
	case eventWorkloadStarted:
		return &EventWorkloadStarted{}
	case eventWorkloadSpawnError:
		return &EventWorkloadSpawnError{}
	case eventWorkloadExited:
		return &EventWorkloadExited{}
	case eventStopRequested:
		return &EventStopRequested{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventSessionStarted is emitted once per session, before anything is spawned.
type EventSessionStarted struct {
	Session  string        `json:"session"`
	Workload string        `json:"workload"`
	Output   string        `json:"output"`
	Interval time.Duration `json:"interval"`
}

func (ev *EventSessionStarted) Type() string { return eventSessionStarted }
func (ev *EventSessionStarted) event()       {}

// EventSessionFinished is emitted once the sampler has been joined, or once the
// session is aborted.
type EventSessionFinished struct {
	Session string `json:"session"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

func (ev *EventSessionFinished) Type() string { return eventSessionFinished }
func (ev *EventSessionFinished) event()       {}

// EventSamplerSpawned is emitted when the sampling tool has been started.
type EventSamplerSpawned struct {
	PID     int      `json:"pid"`
	Command []string `json:"command"`
	Output  string   `json:"output"`
}

func (ev *EventSamplerSpawned) Type() string { return eventSamplerSpawned }
func (ev *EventSamplerSpawned) event()       {}

// EventSamplerSpawnError is emitted when the sampling tool fails to start.
type EventSamplerSpawnError struct {
	Command []string `json:"command"`
	Reason  string   `json:"reason"`
}

func (ev *EventSamplerSpawnError) Type() string { return eventSamplerSpawnError }
func (ev *EventSamplerSpawnError) event()       {}

// EventSamplerOutput is emitted when the sampling tool first writes into the
// output file.
type EventSamplerOutput struct {
	Output string `json:"output"`
}

func (ev *EventSamplerOutput) Type() string { return eventSamplerOutput }
func (ev *EventSamplerOutput) event()       {}

// EventSamplerExited is emitted when the sampling tool has been reaped.
type EventSamplerExited struct {
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code"` // -1 if terminated by a signal
	Killed   bool   `json:"killed"`
	Early    bool   `json:"early,omitempty"`
	Error    string `json:"error,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// IsGraceful returns true if the sampler did not need to be SIGKILLed.
func (ev EventSamplerExited) IsGraceful() bool {
	return !ev.Killed
}

func (ev *EventSamplerExited) Type() string { return eventSamplerExited }
func (ev *EventSamplerExited) event()       {}

// EventWorkloadStarted is emitted when the workload has been started.
type EventWorkloadStarted struct {
	PID  int      `json:"pid"`
	Kind string   `json:"kind"`
	Argv []string `json:"argv"`
}

func (ev *EventWorkloadStarted) Type() string { return eventWorkloadStarted }
func (ev *EventWorkloadStarted) event()       {}

// EventWorkloadSpawnError is emitted when the workload fails to start.
type EventWorkloadSpawnError struct {
	Argv   []string `json:"argv"`
	Reason string   `json:"reason"`
}

func (ev *EventWorkloadSpawnError) Type() string { return eventWorkloadSpawnError }
func (ev *EventWorkloadSpawnError) event()       {}

// EventWorkloadExited is emitted when the workload has exited for any reason.
type EventWorkloadExited struct {
	PID      int           `json:"pid"`
	ExitCode int           `json:"exit_code"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (ev *EventWorkloadExited) Type() string { return eventWorkloadExited }
func (ev *EventWorkloadExited) event()       {}

// EventStopRequested is emitted when the session asks the sampler to stop.
type EventStopRequested struct {
	Session string `json:"session"`
}

func (ev *EventStopRequested) Type() string { return eventStopRequested }
func (ev *EventStopRequested) event()       {}

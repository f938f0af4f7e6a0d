package runmon

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

// mockJournal is an in-memory storage of journals, primarily used for testing.
// A zero-value instance is a valid instance.
//
// Warnings are kept apart from the other events, since some of them depend on
// the environment (e.g. inotify being available).
type mockJournal struct {
	mutex    sync.Mutex
	journals []Event
	warnings []*EventWarning
}

var _ Journaler = (*mockJournal)(nil)

// Write appends a journal event into the internal store.
func (m *mockJournal) Write(ev Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if warn, ok := ev.(*EventWarning); ok {
		m.warnings = append(m.warnings, warn)
		return nil
	}

	m.journals = append(m.journals, normalizeEvent(ev))
	return nil
}

// Journals returns a copy of the journal slice.
func (m *mockJournal) Journals() []Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]Event(nil), m.journals...)
}

// Warnings returns a copy of the warnings written so far.
func (m *mockJournal) Warnings() []*EventWarning {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return append([]*EventWarning(nil), m.warnings...)
}

// WaitFor blocks until an event of the given type is written or the timeout
// elapses.
func (m *mockJournal) WaitFor(t *testing.T, typ string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range m.Journals() {
			if ev.Type() == typ {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("timed out waiting for %q event", typ)
}

// Verify verifies that the given journals slice is equal to the one stored
// internally. If strict is true, then a length check is performed, otherwise,
// the unmatched events are returned.
//
// Consecutive calls to Verify will match the remaining unmatched events.
func (m *mockJournal) Verify(t *testing.T, strict bool, journals []Event) []Event {
	t.Helper()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if strict && len(journals) != len(m.journals) {
		t.Errorf("mismatch journal length, got %d, expected %d", len(m.journals), len(journals))
		for i, ev := range m.journals {
			t.Logf("journal %d: %#v", i, ev)
		}
		return nil
	}

	if len(journals) > len(m.journals) {
		t.Errorf("expected at least %d journals, got %d", len(journals), len(m.journals))
		return nil
	}

	for i, ev := range journals {
		if !reflect.DeepEqual(m.journals[i], ev) {
			t.Errorf("journal %d mismatch, got %#v, expected %#v", i, m.journals[i], ev)
		}
	}

	m.journals = m.journals[len(journals):]
	return m.journals
}

// normalizeEvent zeroes out the fields of ev that vary between runs, such as
// durations and session IDs.
func normalizeEvent(ev Event) Event {
	switch ev := ev.(type) {
	case *EventSessionStarted:
		cp := *ev
		cp.Session = ""
		return &cp
	case *EventSessionFinished:
		cp := *ev
		cp.Session = ""
		return &cp
	case *EventStopRequested:
		cp := *ev
		cp.Session = ""
		return &cp
	case *EventWorkloadExited:
		cp := *ev
		cp.Duration = 0
		return &cp
	default:
		return ev
	}
}

package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"git.unix.lgbt/diamondburned/runmon/runmon"
	"github.com/pkg/errors"
)

// Event describes the JSON structure of an event to be written.
type Event struct {
	Time time.Time    `json:"time"`
	Type string       `json:"type"`
	Data runmon.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into the
// writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ runmon.Journaler = (*Writer)(nil)

// NewWriter creates a new journal writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes the given event into the writer. Writes are concurrently safe
// and each event is written with a single Write call.
func (l *Writer) Write(ev runmon.Event) error {
	evJSON := Event{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(512)

	// Encode appends the trailing new line.
	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

// multiWriter combines multiple journalers.
type multiWriter struct {
	writers []runmon.Journaler
}

// MultiWriter creates a journaler that writes to multiple other journalers.
// Every journaler is written to even if one fails; the first error is
// returned.
func MultiWriter(ws ...runmon.Journaler) runmon.Journaler {
	return &multiWriter{ws}
}

func (w *multiWriter) Write(event runmon.Event) error {
	var firstErr error
	for _, writer := range w.writers {
		if err := writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

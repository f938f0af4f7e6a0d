package journal

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"git.unix.lgbt/diamondburned/runmon/runmon"
	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"
)

// Reader implements a primitive reader that can parse journals written by
// Writer from bottom to top, newest event first.
type Reader struct {
	b *backwardio.Scanner
}

// NewReader creates a new journal reader.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Read reads a single entry, starting from the end of the file. An EOF error is
// returned if the file has been fully consumed.
func (r *Reader) Read() (runmon.Event, time.Time, error) {
	var line []byte
	var err error

	// The scanner yields an empty token for the trailing new line and for
	// blank lines.
	for {
		line, err = r.b.ReadUntil('\n')
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(line) > 0 {
			break
		}
	}

	// line is only valid until the next ReadUntil, so it is decoded right away.
	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode JSON")
	}

	event := runmon.NewEvent(rawEvent.Type)
	if event == nil {
		return nil, time.Time{}, errors.Errorf("unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode event data")
	}

	return event, rawEvent.Time, nil
}

// Entry is a single decoded journal line.
type Entry struct {
	Time  time.Time
	Event runmon.Event
}

// ErrNoSession is returned by ReadLastSession if the journal has no events.
var ErrNoSession = errors.New("journal has no session")

// ReadLastSessionFromFile reads the last session from the given file path.
func ReadLastSessionFromFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadLastSession(f)
}

// ReadLastSession reads the given reader backwards and returns the entries of
// the most recent session in the order that they were written. If the start of
// the session was cut off, then everything until the start of the journal is
// returned.
func ReadLastSession(r io.ReadSeeker) ([]Entry, error) {
	reader := NewReader(r)

	var entries []Entry

	for {
		ev, t, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		entries = append(entries, Entry{t, ev})

		if _, ok := ev.(*runmon.EventSessionStarted); ok {
			break
		}
	}

	if len(entries) == 0 {
		return nil, ErrNoSession
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

package runmon

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// OutputWatcher watches the sampler's output file and counts the writes made
// into it. It is not safe for concurrent use; the sampler goroutine owns it.
type OutputWatcher struct {
	w    *fsnotify.Watcher
	j    Journaler
	path string

	writes int
}

// WatchOutput starts watching the file at path. The file's directory must
// exist. The watcher must be closed by the caller.
func WatchOutput(path string, j Journaler) (*OutputWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}

	// Watch the directory rather than the file itself, so that the watch
	// survives the file being replaced.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to watch dir")
	}

	return &OutputWatcher{
		w:    watcher,
		j:    j,
		path: filepath.Clean(path),
	}, nil
}

// Events returns the channel of raw events to be passed to Handle. A nil
// watcher returns a nil channel, which blocks forever in a select.
func (w *OutputWatcher) Events() <-chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.w.Events
}

// Errors returns the channel of watcher errors to be passed to HandleError.
func (w *OutputWatcher) Errors() <-chan error {
	if w == nil {
		return nil
	}
	return w.w.Errors
}

// Handle processes a single event from Events.
func (w *OutputWatcher) Handle(evt fsnotify.Event) {
	if filepath.Clean(evt.Name) != w.path {
		return
	}

	switch {
	case evt.Op&fsnotify.Write != 0:
		w.writes++
		if w.writes == 1 {
			w.j.Write(&EventSamplerOutput{Output: w.path})
		}

	case evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.j.Write(&EventWarning{
			Component: "watcher",
			Error:     fmt.Sprintf("output file %q was %s while sampling", w.path, evt.Op),
		})
	}
}

// HandleError processes a single error from Errors.
func (w *OutputWatcher) HandleError(err error) {
	w.j.Write(&EventWarning{
		Component: "watcher",
		Error:     "inotify error: " + err.Error(),
	})
}

// Writes returns the number of writes seen so far. A nil watcher saw none.
func (w *OutputWatcher) Writes() int {
	if w == nil {
		return 0
	}
	return w.writes
}

// Close stops watching. It is a no-op on a nil watcher.
func (w *OutputWatcher) Close() error {
	if w == nil {
		return nil
	}
	return w.w.Close()
}

package runmon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputWatcherHandle(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "samples.txt")

	j := mockJournal{}
	w, err := WatchOutput(output, &j)
	if err != nil {
		t.Skip("inotify unavailable:", err)
	}
	defer w.Close()

	w.Handle(fsnotify.Event{Name: filepath.Join(dir, "other.txt"), Op: fsnotify.Write})
	assert.Zero(t, w.Writes())

	w.Handle(fsnotify.Event{Name: output, Op: fsnotify.Write})
	w.Handle(fsnotify.Event{Name: output, Op: fsnotify.Write})
	assert.Equal(t, 2, w.Writes())

	w.Handle(fsnotify.Event{Name: output, Op: fsnotify.Remove})
	w.HandleError(os.ErrClosed)

	j.Verify(t, true, []Event{
		&EventSamplerOutput{Output: output},
	})

	warnings := j.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, "watcher", warnings[0].Component)
	assert.Contains(t, warnings[0].Error, "REMOVE")
	assert.Contains(t, warnings[1].Error, "inotify error")
}

func TestOutputWatcherLive(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "samples.txt")

	j := mockJournal{}
	w, err := WatchOutput(output, &j)
	if err != nil {
		t.Skip("inotify unavailable:", err)
	}
	defer w.Close()

	require.NoError(t, os.WriteFile(output, []byte("usr sys\n"), 0600))

	timeout := time.After(5 * time.Second)
	for w.Writes() == 0 {
		select {
		case evt := <-w.Events():
			w.Handle(evt)
		case err := <-w.Errors():
			t.Fatal("watcher error:", err)
		case <-timeout:
			t.Fatal("timed out waiting for write event")
		}
	}

	assert.Equal(t, 1, w.Writes())
}

func TestOutputWatcherNil(t *testing.T) {
	var w *OutputWatcher

	assert.Nil(t, w.Events())
	assert.Nil(t, w.Errors())
	assert.Zero(t, w.Writes())
	assert.NoError(t, w.Close())
}

func TestWatchOutputMissingDir(t *testing.T) {
	_, err := WatchOutput(filepath.Join(t.TempDir(), "missing", "samples.txt"), DiscardJournal)
	assert.Error(t, err)
}

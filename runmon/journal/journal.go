// Package journal implements runmon.Journaler for files and loggers, and reads
// journal files back. A journal file is held under an exclusive flock for as
// long as a session appends to it, so two runmon sessions never interleave
// their events in the same file.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// lockRetry is how often a held lock is retried while waiting for it.
const lockRetry = 25 * time.Millisecond

// ErrLockedElsewhere is returned if the journal file is locked by another
// process for longer than the caller is willing to wait.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// FileLockJournaler appends events to a journal file that it holds the flock
// of. It must be closed to release the lock; exiting does it too.
//
// Readers don't take the lock. Every event is a single append of a whole line,
// so a Reader only ever sees complete events.
type FileLockJournaler struct {
	*Writer
	file *os.File
	lock *flock.Flock
}

// NewFileLockJournaler locks and opens the journal at path, creating it and
// its parent directories if needed. If another process holds the lock, it is
// retried for up to wait before ErrLockedElsewhere is returned; a zero wait
// gives up right away.
func NewFileLockJournaler(path string, wait time.Duration) (*FileLockJournaler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	lock := flock.New(path)

	if err := acquire(lock, wait); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		lock.Unlock()
		return nil, errors.Wrap(err, "failed to open journal")
	}

	return &FileLockJournaler{
		Writer: NewWriter(file),
		file:   file,
		lock:   lock,
	}, nil
}

func acquire(lock *flock.Flock, wait time.Duration) error {
	var locked bool
	var err error

	if wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()

		locked, err = lock.TryLockContext(ctx, lockRetry)
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockedElsewhere
		}
	} else {
		locked, err = lock.TryLock()
	}

	if err != nil {
		return errors.Wrap(err, "failed to acquire lock")
	}
	if !locked {
		return ErrLockedElsewhere
	}

	return nil
}

// Path returns the path of the journal file.
func (j *FileLockJournaler) Path() string {
	return j.lock.Path()
}

// Close closes the journal file and releases its lock.
func (j *FileLockJournaler) Close() error {
	closeErr := j.file.Close()

	if err := j.lock.Unlock(); err != nil {
		return errors.Wrap(err, "failed to unlock journal")
	}

	return errors.Wrap(closeErr, "failed to close journal")
}

package cgisession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockBusy is returned when a lease-based lock could not be acquired
// before the context ended.
var ErrLockBusy = errors.New("session store lock busy")

// defaultLockRetry is the polling interval used by non-blocking lock primitives.
const defaultLockRetry = 10 * time.Millisecond

// FileLocker is an advisory file lock (flock(2) on Unix) shared by every
// process that points at the same lock path.
type FileLocker struct {
	path  string
	retry time.Duration
}

// NewFileLocker returns a Locker backed by the lock file at path. The file is
// created on first use and never removed.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path, retry: defaultLockRetry}
}

func (l *FileLocker) Lock(ctx context.Context) (func() error, error) {
	// A fresh Flock per call keeps two lockers in one process from sharing a descriptor.
	fl := flock.New(l.path)
	ok, err := fl.TryLockContext(ctx, l.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, l.path)
	}
	return fl.Unlock, nil
}

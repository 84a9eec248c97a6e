// Package audiolock provides the cross-process advisory lock that
// serializes access to the local speaker: only one playback subprocess, across every voxmcp process on the machine, may
// be writing to the audio device at a time.
package audiolock

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultPath is the well-known lock file every voxmcp process agrees on.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "voxmcp-audio.lock")
}

// Lock wraps a flock.Flock scoped to the playback device.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock at path (use DefaultPath() in production).
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks until the lock is held or ctx is done. Callers must defer
// Release. The lock must be held only for the lifetime of the playback
// subprocess call, never across synthesis or queueing.
func (l *Lock) Acquire(ctx context.Context) error {
	_, err := l.fl.TryLockContext(ctx, 25*time.Millisecond)
	return err
}

// Release unlocks. Safe to call even if Acquire failed.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

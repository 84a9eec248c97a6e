// Package registry implements the cross-process session registry: a
// single JSON file under the per-user state directory, mutated under an
// advisory OS file lock, with PID-liveness reaping and sibling-session
// reconciliation.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// OrphanThreshold is how long an alive process may go without a
// successful HTTP liveness ping before the sweep reaps it anyway: an
// alive process with no responsive side-channel is considered stale.
const OrphanThreshold = 5 * time.Minute

// lockTimeout bounds how long Register/attach/rename/unregister will
// wait for the file lock before giving up; a startup-path caller treats
// this as fatal.
const lockTimeout = 5 * time.Second

// ErrNameOccupied is returned by Rename when another live entry holds the
// requested name.
type ErrNameOccupied struct {
	Name    string
	VoiceID string
}

func (e *ErrNameOccupied) Error() string {
	return fmt.Sprintf("name %q is occupied (voice %q)", e.Name, e.VoiceID)
}

// Reconciler decides a registering process's (name, voice) pair given its
// preferred name and the names and voices already held by other live
// entries. The in-process voice registry supplies the production
// implementation so both registries follow one assignment policy.
type Reconciler func(preferred string, claimedNames, claimedVoices map[string]bool) (name, voiceID string)

// IsAliveFunc reports whether pid identifies a live process. Overridable in
// tests; defaults to sending signal 0 via kill(2).
type IsAliveFunc func(pid int) bool

// PingFunc reports whether entry's HTTP side-channel answered GET /status
// within a short timeout. Overridable in tests; nil disables orphan-sweep
// pinging entirely (liveness then rests on PID alone).
type PingFunc func(ctx context.Context, entry Entry) bool

// Store is the handle a process holds on the shared sessions.json file.
type Store struct {
	path     string
	basePort int
	isAlive  IsAliveFunc
	ping     PingFunc

	// lastSeen tracks, per entry name, the last time this process observed
	// a successful liveness ping, used by the orphan sweep. Only
	// meaningful for entries this process has swept at least once.
	lastSeen map[string]time.Time
}

// New creates a Store backed by path, with ports claimed at or above
// basePort.
func New(path string, basePort int) *Store {
	return &Store{
		path:     path,
		basePort: basePort,
		isAlive:  defaultIsAlive,
		ping:     nil,
		lastSeen: make(map[string]time.Time),
	}
}

// SetIsAlive overrides the liveness probe (tests only).
func (s *Store) SetIsAlive(fn IsAliveFunc) { s.isAlive = fn }

// SetPing overrides the HTTP liveness probe used by the orphan sweep.
func (s *Store) SetPing(fn PingFunc) { s.ping = fn }

func defaultIsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, syscall.ESRCH)
}

func (s *Store) lockPath() string { return s.path + ".lock" }

// withLock reads the document, lets fn mutate it, then writes it back,
// all while holding an exclusive lock on s.lockPath(). The lock is
// always released before withLock returns; fn must not perform network
// or subprocess calls while holding it.
func (s *Store) withLock(fn func(doc *document) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return err
	}

	fl := flock.New(s.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("registry: acquiring file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("registry: timed out acquiring file lock on %s", s.lockPath())
	}
	defer func() { _ = fl.Unlock() }()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}

	return s.writeLocked(doc)
}

func (s *Store) readLocked() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return &document{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc.Entries); err != nil {
		logrus.WithError(err).Warn("registry: malformed sessions file, starting empty")
		return &document{}, nil
	}
	return &doc, nil
}

func (s *Store) writeLocked(doc *document) error {
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	data, err := json.MarshalIndent(doc.Entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// reapDeadLocked removes every entry whose PID is no longer alive. Must be
// called with the lock held (i.e. from inside withLock).
func (s *Store) reapDeadLocked(doc *document) {
	live := doc.Entries[:0]
	for _, e := range doc.Entries {
		if s.isAlive(e.PID) {
			live = append(live, e)
		} else {
			logrus.WithFields(logrus.Fields{"name": e.Name, "pid": e.PID}).Info("registry: reaped dead entry")
		}
	}
	doc.Entries = live
}

func (s *Store) lowestFreePort(doc *document) int {
	used := make(map[int]bool, len(doc.Entries))
	for _, e := range doc.Entries {
		used[e.Port] = true
	}
	port := s.basePort
	for used[port] {
		port++
	}
	return port
}

func (s *Store) findByPID(doc *document, pid int) (int, bool) {
	for i, e := range doc.Entries {
		if e.PID == pid {
			return i, true
		}
	}
	return -1, false
}

// Snapshot returns the current live set after an inline dead-entry sweep.
func (s *Store) Snapshot() ([]Entry, error) {
	var out []Entry
	err := s.withLock(func(doc *document) error {
		s.reapDeadLocked(doc)
		out = append(out, doc.Entries...)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, err
}

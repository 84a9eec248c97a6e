package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmcp/voxmcp/internal/voice"
)

func alwaysAlive(pid int) bool { return true }

// fixedReconciler keeps the preferred name and binds it to voiceID; tests
// that exercise real collision behaviour use voice.ReconcileIdentity.
func fixedReconciler(voiceID string) Reconciler {
	return func(preferred string, claimedNames, claimedVoices map[string]bool) (string, string) {
		return preferred, voiceID
	}
}

func TestRegisterFreshStart(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	entry, err := s.Register("Eric", 111, "tmux-a", voice.ReconcileIdentity)
	require.NoError(t, err)
	assert.Equal(t, "Eric", entry.Name)
	assert.Equal(t, "am_eric", entry.VoiceID)
	assert.Equal(t, 9100, entry.Port)
}

func TestRegisterNameCollisionPicksNextCatalogueIdentity(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	first, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	require.Equal(t, "am_eric", first.VoiceID)

	// A second process preferring the same name gets the next free
	// American-English male identity, not a numbered suffix.
	second, err := s.Register("Eric", 222, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	assert.Equal(t, "Adam", second.Name)
	assert.Equal(t, "am_adam", second.VoiceID)
	assert.Equal(t, 9101, second.Port)
}

func TestAttachSessionIDAdoptsLiveSibling(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	original, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	_, err = s.AttachSessionID(111, "sess-1")
	require.NoError(t, err)

	// A second process of the same logical editor session registers fresh
	// (collision gives it a different identity), then attaches the same
	// session id and must converge on the original's name and voice.
	interim, err := s.Register("Eric", 222, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	require.NotEqual(t, original.Name, interim.Name)

	reattached, err := s.AttachSessionID(222, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, original.Name, reattached.Name)
	assert.Equal(t, original.VoiceID, reattached.VoiceID)
}

func TestAttachSessionIDIsIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	_, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)

	first, err := s.AttachSessionID(111, "sess-1")
	require.NoError(t, err)
	second, err := s.AttachSessionID(111, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenameRejectsOccupiedAcrossSessions(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	_, err := s.Register("Eric", 111, "", fixedReconciler("am_eric"))
	require.NoError(t, err)
	_, err = s.Register("Bob", 222, "", fixedReconciler("am_adam"))
	require.NoError(t, err)

	_, err = s.Rename(111, "Bob")
	require.Error(t, err)
	var occupied *ErrNameOccupied
	assert.ErrorAs(t, err, &occupied)
}

func TestRenameAllowsSameSessionSiblingName(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	_, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	_, err = s.AttachSessionID(111, "sess-1")
	require.NoError(t, err)

	_, err = s.Register("Eric", 222, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	_, err = s.AttachSessionID(222, "sess-1")
	require.NoError(t, err)

	renamed, err := s.Rename(222, "Eric")
	require.NoError(t, err)
	assert.Equal(t, "Eric", renamed.Name)
}

func TestUnregisterThenRegisterFreesNameAndPort(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	first, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	require.NoError(t, s.Unregister(111))

	second, err := s.Register("Eric", 333, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Port, second.Port)
}

func TestRegisterReapsDeadEntryBeforeClaiming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	dead := New(path, 9100)
	dead.SetIsAlive(alwaysAlive)
	_, err := dead.Register("Eric", 9999, "", voice.ReconcileIdentity)
	require.NoError(t, err)

	live := New(path, 9100)
	live.SetIsAlive(func(pid int) bool { return pid != 9999 })

	entry, err := live.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)
	assert.Equal(t, "Eric", entry.Name)
	assert.Equal(t, 9100, entry.Port)
}

func TestSweepReapsOrphanAfterThreshold(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)
	_, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)

	s.SetPing(func(ctx context.Context, e Entry) bool { return false })

	require.NoError(t, s.Sweep(context.Background()))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1, "first failed ping only starts the clock")

	s.lastSeen["Eric"] = s.lastSeen["Eric"].Add(-OrphanThreshold - 1)
	require.NoError(t, s.Sweep(context.Background()))
	snap, err = s.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSnapshotOrdersByStartedAt(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)
	_, err := s.Register("a", 1, "", fixedReconciler("am_adam"))
	require.NoError(t, err)
	_, err = s.Register("b", 2, "", fixedReconciler("am_eric"))
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.True(t, !snap[1].StartedAt.Before(snap[0].StartedAt))
}

func TestSetVoiceUpdatesPublishedEntry(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sessions.json"), 9100)
	s.SetIsAlive(alwaysAlive)

	_, err := s.Register("Eric", 111, "", voice.ReconcileIdentity)
	require.NoError(t, err)

	updated, err := s.SetVoice(111, "bm_george")
	require.NoError(t, err)
	assert.Equal(t, "bm_george", updated.VoiceID)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "bm_george", snap[0].VoiceID)
}

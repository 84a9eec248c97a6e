package voice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSuffixMatch(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))

	voiceID, assigned := r.Resolve("Eric")
	assert.True(t, assigned)
	assert.Equal(t, "am_eric", voiceID)
}

func TestResolveIsIdempotent(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))

	first, _ := r.Resolve("Eric")
	second, assigned := r.Resolve("Eric")
	assert.Equal(t, first, second)
	assert.False(t, assigned)
}

func TestResolveDeterministicAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.json")
	r1 := New(path)
	v1, _ := r1.Resolve("SomeRandomAgent")

	r2 := New(path)
	v2, _ := r2.Resolve("SomeRandomAgent")

	assert.Equal(t, v1, v2)
}

func TestSetRejectsUnknownVoice(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))
	err := r.Set("Eric", "not_a_real_voice")
	require.Error(t, err)

	d, ok := err.(interface{ Error() string })
	require.True(t, ok)
	assert.Contains(t, d.Error(), "invalid_voice")
}

func TestSetThenSnapshotRoundTrips(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))
	require.NoError(t, r.Set("Eric", "am_adam"))

	snap := r.Snapshot()
	assert.Equal(t, "am_adam", snap.Map["Eric"])
	assert.Equal(t, 1, snap.TotalAssigned)
}

func TestRenameRejectsOccupiedName(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))
	require.NoError(t, r.Set("Eric", "am_eric"))
	require.NoError(t, r.Set("Adam", "am_adam"))

	err := r.Rename("Eric", "Adam")
	require.Error(t, err)
}

func TestRenameMovesBinding(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))
	require.NoError(t, r.Set("Eric", "am_eric"))

	require.NoError(t, r.Rename("Eric", "Bob"))
	snap := r.Snapshot()
	assert.Equal(t, "am_eric", snap.Map["Bob"])
	_, stillThere := snap.Map["Eric"]
	assert.False(t, stillThere)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.json")
	r1 := New(path)
	require.NoError(t, r1.Set("Eric", "am_eric"))
	require.NoError(t, r1.Save())

	r2 := New(path)
	r2.Load()
	snap := r2.Snapshot()
	assert.Equal(t, "am_eric", snap.Map["Eric"])
}

func TestLoadMissingFileIsEmptyRegistry(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	r.Load()
	snap := r.Snapshot()
	assert.Empty(t, snap.Map)
}

func TestLoadMalformedFileIsEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))

	r := New(path)
	r.Load()
	snap := r.Snapshot()
	assert.Empty(t, snap.Map)
}

func TestPoolExhaustionStillReturnsValidVoice(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))
	for i := 0; i < len(Catalogue); i++ {
		name := "agent" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		voiceID, _ := r.Resolve(name)
		_, ok := ByID(voiceID)
		assert.True(t, ok)
	}

	// One more: pool exhausted, but resolve must still return a valid voice.
	voiceID, assigned := r.Resolve("oneMoreAgent")
	assert.True(t, assigned)
	_, ok := ByID(voiceID)
	assert.True(t, ok)
}

func TestReconcileIdentityKeepsFreeName(t *testing.T) {
	name, voiceID := ReconcileIdentity("Eric", map[string]bool{}, map[string]bool{})
	assert.Equal(t, "Eric", name)
	assert.Equal(t, "am_eric", voiceID)
}

func TestReconcileIdentityCollisionPicksNextTieredIdentity(t *testing.T) {
	claimedNames := map[string]bool{"Eric": true}
	claimedVoices := map[string]bool{"am_eric": true}

	name, voiceID := ReconcileIdentity("Eric", claimedNames, claimedVoices)
	assert.Equal(t, "Adam", name)
	assert.Equal(t, "am_adam", voiceID)
}

func TestReconcileIdentityIsDeterministic(t *testing.T) {
	claimedNames := map[string]bool{"Eric": true, "Adam": true}
	claimedVoices := map[string]bool{"am_eric": true, "am_adam": true}

	n1, v1 := ReconcileIdentity("Eric", claimedNames, claimedVoices)
	n2, v2 := ReconcileIdentity("Eric", claimedNames, claimedVoices)
	assert.Equal(t, n1, n2)
	assert.Equal(t, v1, v2)
	assert.NotEqual(t, "Eric", n1)
}

func TestReconcileIdentityExhaustedFallsBackToNumberedName(t *testing.T) {
	claimedNames := make(map[string]bool)
	claimedVoices := make(map[string]bool)
	for _, v := range Catalogue {
		claimedVoices[v.ID] = true
		claimedNames[capitalise(suffix(v.ID))] = true
	}

	name, voiceID := ReconcileIdentity("Eric", claimedNames, claimedVoices)
	assert.Equal(t, "Eric-2", name)
	_, ok := ByID(voiceID)
	assert.True(t, ok)
}

func TestSeedSkipsBoundNamesAndUnknownVoices(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "voices.json"))
	require.NoError(t, r.Set("Eric", "am_eric"))

	r.Seed(map[string]string{
		"Eric":    "am_adam",      // already bound, must not be overwritten
		"default": "af_bella",
		"Ghost":   "not_a_voice",  // unknown, skipped
	})

	snap := r.Snapshot()
	assert.Equal(t, "am_eric", snap.Map["Eric"])
	assert.Equal(t, "af_bella", snap.Map["default"])
	_, seeded := snap.Map["Ghost"]
	assert.False(t, seeded)
}

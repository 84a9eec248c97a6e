package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "assistant", cfg.MainAgent)
	assert.Equal(t, 7865, cfg.HTTPBasePort)
	assert.InDelta(t, 0.3, cfg.STT.VADThreshold, 1e-9)
}

func TestLoadMalformedFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{broken"), 0o640))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := defaults()
	cfg.MainAgent = "Eric"
	cfg.LastVoiceName = "Adam"
	cfg.VoiceRegistrySeed = map[string]string{"Eric": "am_eric"}
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Eric", loaded.MainAgent)
	assert.Equal(t, "Adam", loaded.LastVoiceName)
	assert.Equal(t, "am_eric", loaded.VoiceRegistrySeed["Eric"])
}

func TestLoadOverlaysPartialFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"main_agent":"Eric"}`), 0o640))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Eric", cfg.MainAgent)
	assert.Equal(t, 7865, cfg.HTTPBasePort, "unset fields keep their defaults")
}

func TestStateDirPrefersXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	assert.Equal(t, filepath.Join("/tmp/xdg-state", "voxmcp"), StateDir())
}

func TestMarshalYAMLRendersConfig(t *testing.T) {
	out, err := MarshalYAML(defaults())
	require.NoError(t, err)
	assert.Contains(t, string(out), "main_agent: assistant")
}

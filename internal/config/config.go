// Package config loads the process's persistent configuration from the
// per-user state directory: a best-effort .env via godotenv, then the
// explicit config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnginePaths names the external engine binaries/models each adapter
// shells out to. Empty means "not configured"; the adapter degrades at
// startup rather than failing at config load.
type EnginePaths struct {
	Synthesis     string `json:"synthesis" yaml:"synthesis"`
	Transcription string `json:"transcription" yaml:"transcription"`
	VAD           string `json:"vad" yaml:"vad"`
	WakeWord      string `json:"wake_word" yaml:"wake_word"`
	Capture       string `json:"capture" yaml:"capture"`
}

// STTConfig holds transcription/VAD tuning.
type STTConfig struct {
	VADThreshold float64 `json:"vad_threshold" yaml:"vad_threshold"`
}

// WakeWordConfig holds wake-word listener defaults.
type WakeWordConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Phrase    string  `json:"phrase" yaml:"phrase"`
}

// Config is the full on-disk shape of <state>/config.json.
type Config struct {
	Engines          EnginePaths       `json:"engines" yaml:"engines"`
	DefaultVoice     string            `json:"default_voice" yaml:"default_voice"`
	MainAgent        string            `json:"main_agent" yaml:"main_agent"`
	LastVoiceName    string            `json:"last_voice_name" yaml:"last_voice_name"`
	HTTPBasePort     int               `json:"http_base_port" yaml:"http_base_port"`
	STT              STTConfig         `json:"stt" yaml:"stt"`
	WakeWord         WakeWordConfig    `json:"wake_word" yaml:"wake_word"`
	VoiceRegistrySeed map[string]string `json:"voice_registry,omitempty" yaml:"voice_registry,omitempty"`
}

func defaults() Config {
	return Config{
		MainAgent:    "assistant",
		HTTPBasePort: 7865,
		STT:          STTConfig{VADThreshold: 0.3},
		WakeWord:     WakeWordConfig{Threshold: 0.5},
		Engines:      EnginePaths{Capture: "arecord"},
	}
}

// StateDir resolves the per-user state directory, preferring
// XDG_STATE_HOME before falling back to ~/.local/state.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "voxmcp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "voxmcp")
	}
	return filepath.Join(home, ".local", "state", "voxmcp")
}

// Load reads .env (if present, via godotenv, best-effort) then
// <state>/config.json. A missing file yields built-in defaults; a
// malformed file is a startup error (unlike the voice registry's
// missing-file tolerance) since a corrupt config can silently
// misconfigure ports and engine paths.
func Load(stateDir string) (Config, error) {
	_ = godotenv.Load(filepath.Join(stateDir, ".env"))

	cfg := defaults()
	path := filepath.Join(stateDir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: malformed %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg back to <state>/config.json, creating the directory if
// needed. Primarily used to persist LastVoiceName across restarts.
func Save(stateDir string, cfg Config) error {
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(stateDir, "config.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MarshalYAML renders the effective config for the startup debug dump.
// The on-disk format is JSON; operators inspecting a running process get
// the more readable YAML rendering.
func MarshalYAML(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

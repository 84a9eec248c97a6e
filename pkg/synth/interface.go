// Package synth defines the synthesis engine adapter contract: given a
// voice id, text, and speed multiplier, produce a PCM buffer and its
// sample rate. A narrow interface, a deterministic fake, and a real
// subprocess-backed implementation, so the speech pipeline never sees
// engine-specific types.
package synth

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with empty text, per
// the adapter contract's "must tolerate empty text by raising an error".
var ErrEmptyText = errors.New("synth: empty text")

// Result is the PCM output of one synthesis call.
type Result struct {
	PCM        []float32
	SampleRate int
}

// Synthesizer is the narrow contract every backend implements.
type Synthesizer interface {
	// Synthesize renders text as speech using voiceID, played at speed ×
	// the voice's natural rate.
	Synthesize(ctx context.Context, voiceID, text string, speed float64) (Result, error)

	// Ready reports whether the engine loaded successfully at startup.
	Ready() bool

	// Close releases engine resources.
	Close() error
}

package synth

import (
	"context"
	"sync"
)

// Fake is a deterministic in-memory Synthesizer used throughout the test
// suite. It never touches a real audio engine: the "PCM" it produces is
// silence whose length scales with the input text so tests can
// assert on chunking and timing behaviour without real audio.
type Fake struct {
	mu    sync.Mutex
	Calls []FakeCall
	ready bool
}

// FakeCall records one invocation for assertions.
type FakeCall struct {
	VoiceID string
	Text    string
	Speed   float64
}

// NewFake returns a ready Fake.
func NewFake() *Fake {
	return &Fake{ready: true}
}

const sampleRate = 16000

func (f *Fake) Synthesize(ctx context.Context, voiceID, text string, speed float64) (Result, error) {
	if text == "" {
		return Result{}, ErrEmptyText
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, FakeCall{VoiceID: voiceID, Text: text, Speed: speed})
	f.mu.Unlock()

	// 10ms of silence per character is enough for playback-duration
	// assertions without generating meaningfully sized buffers in tests.
	samples := (len(text) * sampleRate) / 100
	if samples < 1 {
		samples = 1
	}
	pcm := make([]float32, samples)
	return Result{PCM: pcm, SampleRate: sampleRate}, nil
}

func (f *Fake) Ready() bool { return f.ready }

func (f *Fake) Close() error { return nil }

// SetReady lets tests simulate an engine that failed to load.
func (f *Fake) SetReady(ready bool) { f.ready = ready }

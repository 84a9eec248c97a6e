// Package transcribe defines the transcription engine adapter contract:
// given 16kHz mono float32 PCM, return text and a log probability. A
// narrow interface, a deterministic fake, and a subprocess-backed real
// adapter, so the listen pipeline never sees engine-specific types.
package transcribe

import "context"

// Result is one transcription outcome.
type Result struct {
	Text string
	// AvgLogProb is in (-inf, 0]; the listen pipeline derives confidence
	// as exp(AvgLogProb) clamped to [0,1].
	AvgLogProb float64
}

// Transcriber is the narrow contract every backend implements.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32, sampleRate int) (Result, error)
	Ready() bool
	Close() error
}

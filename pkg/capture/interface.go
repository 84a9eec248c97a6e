// Package capture defines the microphone capture adapter contract: open
// the default microphone and deliver fixed-size frames to a consumer. The listen pipeline reads
// float32 frames at 16kHz; the wake-word listener reads int16 frames at
// the same rate. Both are modelled as a Device exposing one stream per
// format so either caller opens only the shape it needs.
package capture

import "context"

// FloatStream delivers 16kHz mono float32 frames, 512 samples per call.
type FloatStream interface {
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Int16Stream delivers 16kHz mono int16 frames, 1280 samples per call.
type Int16Stream interface {
	Read(ctx context.Context) ([]int16, error)
	Close() error
}

// Device opens the host's default microphone in one of the two frame
// formats the pipelines need. Only one stream (of either kind) may be
// open at a time per process, enforced by the mic arbiter, not by
// Device itself.
type Device interface {
	OpenFloatStream(frameSize int) (FloatStream, error)
	OpenInt16Stream(frameSize int) (Int16Stream, error)
}

// Package wake defines the wake-word adapter contract: given an 80ms
// int16 frame, return a score in [0,1] per shipped phrase model. The
// score-window and cooldown logic lives in the wake listener's own
// state machine; this contract is per-frame scoring only.
package wake

// FrameSamples is the adapter contract's fixed frame length (80ms at 16kHz).
const FrameSamples = 1280

// Detector is the narrow contract every backend implements.
type Detector interface {
	// Score returns a per-model detection score for one frame. Model ids
	// are backend-defined (e.g. a phrase name); a detector shipping one
	// phrase model returns a single-entry map.
	Score(frame []int16) (map[string]float64, error)

	Ready() bool
	Close() error
}

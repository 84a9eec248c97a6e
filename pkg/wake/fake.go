package wake

import "fmt"

// Fake is a deterministic Detector for tests: it scores a frame as a hit
// for ModelID whenever the frame's peak amplitude exceeds Threshold,
// letting tests trigger a detection with a synthetic loud frame and stay
// silent otherwise, without a real acoustic model.
type Fake struct {
	ModelID   string
	Threshold int16
	ready     bool
}

func NewFake(modelID string) *Fake {
	return &Fake{ModelID: modelID, Threshold: 1 << 14, ready: true}
}

func (f *Fake) Score(frame []int16) (map[string]float64, error) {
	if len(frame) != FrameSamples {
		return nil, fmt.Errorf("wake: fake expects %d-sample frames, got %d", FrameSamples, len(frame))
	}
	var peak int16
	for _, s := range frame {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	score := 0.0
	if peak >= f.Threshold {
		score = 1.0
	}
	return map[string]float64{f.ModelID: score}, nil
}

func (f *Fake) Ready() bool { return f.ready }

func (f *Fake) SetReady(ready bool) { f.ready = ready }

func (f *Fake) Close() error { return nil }

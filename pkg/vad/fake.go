package vad

import (
	"fmt"
	"math"
)

// Fake is a deterministic Detector: it classifies a frame as speech when
// its RMS energy exceeds a configurable threshold, so tests can drive the
// WaitingForSpeech/Recording/Finalising state machine with plain
// synthetic tones and silence rather than a real acoustic model.
type Fake struct {
	Threshold float64
	ready     bool
}

func NewFake() *Fake {
	return &Fake{Threshold: 0.01, ready: true}
}

func (f *Fake) Process(frame []float32, carry []float32) (float64, []float32, error) {
	if len(frame) != FrameSize {
		return 0, nil, fmt.Errorf("vad: fake expects %d-sample frames, got %d", FrameSize, len(frame))
	}

	var sumSq float64
	for _, s := range frame {
		sumSq += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSq / float64(len(frame)))

	probability := 0.0
	if rms > f.Threshold {
		probability = 1.0
	}

	newCarry := make([]float32, CarrySize)
	copy(newCarry, frame[len(frame)-CarrySize:])
	return probability, newCarry, nil
}

func (f *Fake) Ready() bool { return f.ready }

func (f *Fake) SetReady(ready bool) { f.ready = ready }

func (f *Fake) Close() error { return nil }

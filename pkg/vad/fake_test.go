package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentFrame() []float32 { return make([]float32, FrameSize) }

func loudFrame() []float32 {
	f := make([]float32, FrameSize)
	for i := range f {
		f[i] = 0.5
	}
	return f
}

func TestFakeProcessSilenceIsLowProbability(t *testing.T) {
	f := NewFake()
	prob, carry, err := f.Process(silentFrame(), make([]float32, CarrySize))
	require.NoError(t, err)
	assert.Equal(t, 0.0, prob)
	assert.Len(t, carry, CarrySize)
}

func TestFakeProcessLoudFrameIsSpeech(t *testing.T) {
	f := NewFake()
	prob, _, err := f.Process(loudFrame(), make([]float32, CarrySize))
	require.NoError(t, err)
	assert.Equal(t, 1.0, prob)
}

func TestFakeProcessRejectsWrongFrameSize(t *testing.T) {
	f := NewFake()
	_, _, err := f.Process(make([]float32, 10), make([]float32, CarrySize))
	assert.Error(t, err)
}

package transcribe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTranscribeEmptyPCMIsLowConfidence(t *testing.T) {
	f := NewFake()
	result, err := f.Transcribe(context.Background(), nil, 16000)
	require.NoError(t, err)
	assert.Equal(t, "", result.Text)
	assert.Less(t, result.AvgLogProb, -1.0)
}

func TestFakeTranscribeQueuedResult(t *testing.T) {
	f := NewFake()
	f.NextResult(Result{Text: "turn off the lights", AvgLogProb: -0.05})

	result, err := f.Transcribe(context.Background(), make([]float32, 100), 16000)
	require.NoError(t, err)
	assert.Equal(t, "turn off the lights", result.Text)
	assert.Equal(t, 1, f.Calls)
}

package speech

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmcp/voxmcp/internal/audiolock"
	"github.com/voxmcp/voxmcp/internal/voice"
	"github.com/voxmcp/voxmcp/pkg/synth"
)

// noopSink plays nothing real but still exercises the cross-process lock,
// so the worker's Play call succeeds instead of panicking on a nil lock.
func noopSink(t *testing.T) *Sink {
	t.Helper()
	bin, err := exec.LookPath("true")
	if err != nil {
		bin, err = exec.LookPath("echo")
		require.NoError(t, err)
	}
	return &Sink{
		lock:    audiolock.New(filepath.Join(t.TempDir(), "audio.lock")),
		playBin: bin,
		playArg: func(string) []string { return nil },
	}
}

func newTestPipeline(t *testing.T, sessionName string, fakeSynth *synth.Fake) (*Pipeline, *Queue) {
	t.Helper()
	voices := voice.New(filepath.Join(t.TempDir(), "voices.json"))
	queue := NewQueue()
	sink := noopSink(t)
	worker := NewWorker(queue, fakeSynth, sink)
	p := &Pipeline{Queue: queue, Worker: worker, Voices: voices, Sink: sink, SessionName: func() string { return sessionName }}
	go worker.Run(context.Background())
	return p, queue
}

func TestSpeakRejectsNonSessionName(t *testing.T) {
	p, _ := newTestPipeline(t, "Eric", synth.NewFake())
	outcome, err := p.Speak(context.Background(), "Adam", "hello", 1.0, false)
	require.Error(t, err)
	assert.True(t, outcome.NameOccupied)
	assert.Equal(t, "Eric", outcome.SessionName)
}

func TestSpeakAllowsDefaultAlias(t *testing.T) {
	p, queue := newTestPipeline(t, "Eric", synth.NewFake())
	outcome, err := p.Speak(context.Background(), "default", "hello", 1.0, false)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.Queued)
	_ = queue
}

func TestSpeakMutedSkipsEnqueue(t *testing.T) {
	p, queue := newTestPipeline(t, "Eric", synth.NewFake())
	p.SetMuted(true)
	outcome, err := p.Speak(context.Background(), "Eric", "hello", 1.0, true)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 0, queue.Depth())
}

func TestChunkTextSplitsLongTextOnSentences(t *testing.T) {
	text := ""
	for i := 0; i < 60; i++ {
		text += "This is one sentence. "
	}
	chunks := chunkText(text)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, len(c) > 0)
	}
}

func TestChunkTextShortTextIsOneChunk(t *testing.T) {
	chunks := chunkText("hi there")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hi there", chunks[0])
}

func TestQueueSubmitAfterStopIsRejected(t *testing.T) {
	q := NewQueue()
	q.Stop()
	_, err := q.Submit(&Request{AgentName: "x", Text: "hi", Block: true})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueSubmitNonBlockingReturnsImmediately(t *testing.T) {
	q := NewQueue()
	done := make(chan struct{})
	go func() {
		result, err := q.Submit(&Request{AgentName: "x", Text: "hi", Block: false})
		assert.NoError(t, err)
		assert.True(t, result.Queued)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("non-blocking submit did not return")
	}
}

package listen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmcp/voxmcp/internal/errs"
	"github.com/voxmcp/voxmcp/internal/mic"
	"github.com/voxmcp/voxmcp/pkg/capture"
	"github.com/voxmcp/voxmcp/pkg/transcribe"
	"github.com/voxmcp/voxmcp/pkg/vad"
)

type noWakeword struct{}

func (noWakeword) RequestYield() {}
func (noWakeword) Running() bool { return false }

func loudFrame() []float32 {
	f := make([]float32, frameSize)
	for i := range f {
		f[i] = 0.5
	}
	return f
}

func silentFrame() []float32 {
	return make([]float32, frameSize)
}

func TestListenReturnsMutedFast(t *testing.T) {
	p := NewPipeline(mic.New(), capture.NewFakeDevice(), vad.NewFake(), transcribe.NewFake(), noWakeword{}, func() bool { return true })
	_, err := p.Listen(context.Background(), nil, time.Second, 200*time.Millisecond, true)
	d, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindMuted, d.Kind)
}

func TestListenZeroTimeoutReturnsTimeoutImmediately(t *testing.T) {
	p := NewPipeline(mic.New(), capture.NewFakeDevice(), vad.NewFake(), transcribe.NewFake(), noWakeword{}, func() bool { return false })
	_, err := p.Listen(context.Background(), nil, 0, 200*time.Millisecond, true)
	d, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindTimeout, d.Kind)
}

func TestListenSecondConcurrentCallIsMicBusy(t *testing.T) {
	device := capture.NewFakeDevice()
	for i := 0; i < 200; i++ {
		device.PushFloat(silentFrame())
	}
	p := NewPipeline(mic.New(), device, vad.NewFake(), transcribe.NewFake(), noWakeword{}, func() bool { return false })

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = p.Listen(context.Background(), nil, 5*time.Second, 100*time.Millisecond, true)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	_, err := p.Listen(context.Background(), nil, time.Second, 100*time.Millisecond, true)
	d, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindMicBusy, d.Kind)
}

func TestListenHappyPathRecordsAndTranscribes(t *testing.T) {
	device := capture.NewFakeDevice()
	device.PushFloat(loudFrame())
	device.PushFloat(loudFrame())
	for i := 0; i < 20; i++ {
		device.PushFloat(silentFrame())
	}

	transcriber := transcribe.NewFake()
	transcriber.NextResult(transcribe.Result{Text: "hello world", AvgLogProb: -0.1})

	p := NewPipeline(mic.New(), device, vad.NewFake(), transcriber, noWakeword{}, func() bool { return false })
	outcome, err := p.Listen(context.Background(), nil, 5*time.Second, 50*time.Millisecond, true)
	require.NoError(t, err)
	assert.Equal(t, "hello world", outcome.Text)
	assert.Greater(t, outcome.Confidence, 0.0)
}

func TestListenCancelledByToken(t *testing.T) {
	device := capture.NewFakeDevice()
	for i := 0; i < 1000; i++ {
		device.PushFloat(silentFrame())
	}
	p := NewPipeline(mic.New(), device, vad.NewFake(), transcribe.NewFake(), noWakeword{}, func() bool { return false })

	cancel := make(chan struct{})
	close(cancel)
	_, err := p.Listen(context.Background(), cancel, 5*time.Second, 100*time.Millisecond, true)
	d, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindCancelled, d.Kind)
}

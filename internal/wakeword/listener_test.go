package wakeword

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmcp/voxmcp/internal/mic"
	"github.com/voxmcp/voxmcp/internal/registry"
	"github.com/voxmcp/voxmcp/pkg/capture"
	"github.com/voxmcp/voxmcp/pkg/transcribe"
	"github.com/voxmcp/voxmcp/pkg/vad"
	"github.com/voxmcp/voxmcp/pkg/wake"
)

type fakeInjector struct {
	mu      sync.Mutex
	targets []registry.Entry
	texts   []string
}

func (f *fakeInjector) Inject(ctx context.Context, target registry.Entry, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.texts = append(f.texts, text)
	return nil
}

type fakeSessions struct {
	entries []registry.Entry
}

func (f fakeSessions) Snapshot() ([]registry.Entry, error) { return f.entries, nil }

func loudInt16Frame() []int16 {
	f := make([]int16, wake.FrameSamples)
	for i := range f {
		f[i] = 1<<15 - 1
	}
	return f
}

func loudFloatFrame() []float32 {
	f := make([]float32, vad.FrameSize)
	for i := range f {
		f[i] = 0.5
	}
	return f
}

func silentFloatFrame() []float32 {
	return make([]float32, vad.FrameSize)
}

func newTestListener(sessions SessionLister, injector Injector) (*Listener, *capture.FakeDevice, *transcribe.Fake) {
	device := capture.NewFakeDevice()
	transcriber := transcribe.NewFake()
	l := New(mic.New(), device, wake.NewFake("hey-test"), vad.NewFake(), transcriber, sessions, injector, 0.5)
	return l, device, transcriber
}

func TestHoldMicAndListenDetectsAndRoutesToSoleSession(t *testing.T) {
	injector := &fakeInjector{}
	sessions := fakeSessions{entries: []registry.Entry{{Name: "claude", PID: 1}}}
	l, device, transcriber := newTestListener(sessions, injector)
	l.running = true
	l.RecordSilence = 20 * time.Millisecond
	transcriber.NextResult(transcribe.Result{Text: "open the file", AvgLogProb: -0.05})

	device.PushInt16(loudInt16Frame())
	device.PushFloat(loudFloatFrame())
	device.PushFloat(loudFloatFrame())
	for i := 0; i < 20; i++ {
		device.PushFloat(silentFloatFrame())
	}

	err := l.holdMicAndListen(context.Background())
	require.NoError(t, err)

	require.Len(t, injector.texts, 1)
	assert.Equal(t, "open the file", injector.texts[0])
	assert.Equal(t, "claude", injector.targets[0].Name)
	assert.Equal(t, mic.HolderNone, l.Arbiter.CurrentHolder())
}

func TestRouteAddressesSessionByLeadingName(t *testing.T) {
	injector := &fakeInjector{}
	sessions := fakeSessions{entries: []registry.Entry{
		{Name: "claude", PID: 1},
		{Name: "otto", PID: 2},
	}}
	l, _, _ := newTestListener(sessions, injector)

	err := l.route(context.Background(), "Otto check the tests")
	require.NoError(t, err)
	require.Len(t, injector.texts, 1)
	assert.Equal(t, "otto", injector.targets[0].Name)
	assert.Equal(t, "check the tests", injector.texts[0])
}

func TestRouteFallsBackToMostRecentlyStartedSession(t *testing.T) {
	injector := &fakeInjector{}
	sessions := fakeSessions{entries: []registry.Entry{
		{Name: "claude", PID: 1},
		{Name: "otto", PID: 2},
	}}
	l, _, _ := newTestListener(sessions, injector)

	err := l.route(context.Background(), "run the build please")
	require.NoError(t, err)
	require.Len(t, injector.texts, 1)
	assert.Equal(t, "otto", injector.targets[0].Name)
	assert.Equal(t, "run the build please", injector.texts[0])
}

func TestRouteWithNoLiveSessionsIsNoop(t *testing.T) {
	injector := &fakeInjector{}
	l, _, _ := newTestListener(fakeSessions{}, injector)

	err := l.route(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, injector.texts)
}

func TestEnableThenDisableStopsWorker(t *testing.T) {
	l, _, _ := newTestListener(fakeSessions{}, &fakeInjector{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Enable(ctx)

	require.Eventually(t, func() bool { return l.Running() }, time.Second, time.Millisecond)
	l.Disable()
	require.Eventually(t, func() bool { return l.State() == Disabled }, time.Second, time.Millisecond)
}

func TestArbiterYieldsMicToAcquireListen(t *testing.T) {
	arbiter := mic.New()
	device := capture.NewFakeDevice()
	l := New(arbiter, device, wake.NewFake("hey-test"), vad.NewFake(), transcribe.NewFake(), fakeSessions{}, &fakeInjector{}, 0.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Enable(ctx)
	require.Eventually(t, func() bool { return l.State() == Listening }, time.Second, time.Millisecond)

	l.RequestYield()
	ok := arbiter.AcquireListen(500 * time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, mic.HolderListen, arbiter.CurrentHolder())
	arbiter.Release(mic.HolderListen)
	l.Disable()
}

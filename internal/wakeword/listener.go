// Package wakeword implements the always-on wake-word listener: a
// dedicated goroutine that owns an int16 capture stream while holding
// the mic arbiter, scores frames through the wake-word adapter with a
// trailing score window and cooldown, and on detection records an
// utterance the same way the listen pipeline does before routing the
// text to a live session instead of returning it to a caller.
package wakeword

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/listen"
	"github.com/voxmcp/voxmcp/internal/mic"
	"github.com/voxmcp/voxmcp/internal/registry"
	"github.com/voxmcp/voxmcp/pkg/capture"
	"github.com/voxmcp/voxmcp/pkg/transcribe"
	"github.com/voxmcp/voxmcp/pkg/vad"
	"github.com/voxmcp/voxmcp/pkg/wake"
)

// State is the listener's current phase.
type State int

const (
	Disabled State = iota
	Listening
	Recording
	Injecting
	Yielded
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Listening:
		return "listening"
	case Recording:
		return "recording"
	case Injecting:
		return "injecting"
	case Yielded:
		return "yielded"
	default:
		return "unknown"
	}
}

const (
	scoreWindowSize = 5
	detectCooldown  = 1500 * time.Millisecond
	sampleRate      = 16000

	// defaultRecordTimeout and defaultRecordSilence mirror the listen
	// tool's own defaults; a routed utterance gets the same patience a
	// direct listen call would.
	defaultRecordTimeout = 15 * time.Second
	defaultRecordSilence = 1500 * time.Millisecond
)

// SessionLister is the subset of the session registry the listener
// needs to route a detected utterance.
type SessionLister interface {
	Snapshot() ([]registry.Entry, error)
}

// Injector delivers routed text into a live session's terminal multiplexer
// over its HTTP side-channel.
type Injector interface {
	Inject(ctx context.Context, target registry.Entry, text string) error
}

// Listener is the wake-word worker. Construct with New and drive with
// Enable/Disable; it satisfies internal/listen.Yielder so the listen
// pipeline can preempt it through the same mic arbiter both depend on.
type Listener struct {
	Arbiter       *mic.Arbiter
	Device        capture.Device
	WakeWord      wake.Detector
	VAD           vad.Detector
	Transcriber   transcribe.Transcriber
	Sessions      SessionLister
	Deliver       Injector
	Threshold     float64
	RecordTimeout time.Duration
	RecordSilence time.Duration
	ReadyCue      func(ctx context.Context) error

	mu      sync.Mutex
	state   State
	running bool

	// lastDetect is only touched by the worker goroutine; it outlives a
	// single mic hold so the cooldown spans consecutive detections.
	lastDetect time.Time
}

// New wires a Listener. threshold is the wake-word score (in [0,1]) above
// which the trailing score window counts as a detection; 0 selects the
// spec default of 0.5.
func New(arbiter *mic.Arbiter, device capture.Device, detector wake.Detector, vadDetector vad.Detector, transcriber transcribe.Transcriber, sessions SessionLister, deliver Injector, threshold float64) *Listener {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Listener{
		Arbiter:       arbiter,
		Device:        device,
		WakeWord:      detector,
		VAD:           vadDetector,
		Transcriber:   transcriber,
		Sessions:      sessions,
		Deliver:       deliver,
		Threshold:     threshold,
		RecordTimeout: defaultRecordTimeout,
		RecordSilence: defaultRecordSilence,
		state:         Disabled,
	}
}

// Enable transitions Disabled → Listening and starts the worker goroutine.
// A no-op if already running.
func (l *Listener) Enable(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	go l.run(ctx)
}

// Disable stops the worker from whatever state it is in; it releases the
// mic (if held) at its next checkpoint.
func (l *Listener) Disable() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// Running reports whether the worker is anywhere other than Disabled.
// Implements internal/listen.Yielder.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// RequestYield asks the worker to give up the mic at its next scoring
// checkpoint. Implements internal/listen.Yielder by forwarding straight to
// the arbiter both sides already share.
func (l *Listener) RequestYield() {
	l.Arbiter.RequestYield()
}

// State reports the worker's current phase.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Listener) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// run is the worker loop: each iteration acquires the mic, scores frames
// until either a detection routes an utterance or a yield/disable ends the
// segment, then (if still enabled) loops back to re-acquire. Acquire's own
// blocking wait is what implements the Yielded state; there's no separate
// wait here once the mic has been released.
func (l *Listener) run(ctx context.Context) {
	for l.isRunning() {
		if ctx.Err() != nil {
			break
		}
		if err := l.holdMicAndListen(ctx); err != nil {
			logrus.WithError(err).Warn("wakeword: listen cycle failed, disabling")
			break
		}
	}
	l.mu.Lock()
	l.running = false
	l.state = Disabled
	l.mu.Unlock()
}

func (l *Listener) holdMicAndListen(ctx context.Context) error {
	l.Arbiter.Acquire(mic.HolderWakeWord)
	l.setState(Listening)

	stream, err := l.Device.OpenInt16Stream(wake.FrameSamples)
	if err != nil {
		l.Arbiter.Release(mic.HolderWakeWord)
		return err
	}

	scoreWindow := make([]float64, scoreWindowSize)
	idx := 0

	for {
		if l.Arbiter.ShouldYield() || !l.isRunning() {
			stream.Close()
			l.setState(Yielded)
			l.Arbiter.Release(mic.HolderWakeWord)
			return nil
		}

		frame, err := stream.Read(ctx)
		if err != nil {
			stream.Close()
			l.Arbiter.Release(mic.HolderWakeWord)
			return err
		}

		scores, err := l.WakeWord.Score(frame)
		if err != nil {
			stream.Close()
			l.Arbiter.Release(mic.HolderWakeWord)
			return err
		}

		scoreWindow[idx%scoreWindowSize] = peakOf(scores)
		idx++

		if maxOf(scoreWindow) >= l.Threshold && time.Since(l.lastDetect) > detectCooldown {
			l.lastDetect = time.Now()
			for i := range scoreWindow {
				scoreWindow[i] = 0
			}

			// Close the int16 stream and discard pending audio before
			// opening the float32 stream, so the wake phrase itself is
			// never echoed into the transcriber.
			stream.Close()

			if err := l.recordAndRoute(ctx); err != nil {
				logrus.WithError(err).Warn("wakeword: recording/routing failed")
			}
			l.Arbiter.Release(mic.HolderWakeWord)
			return nil
		}
	}
}

func (l *Listener) recordAndRoute(ctx context.Context) error {
	l.setState(Recording)

	if l.ReadyCue != nil {
		if err := l.ReadyCue(ctx); err != nil {
			logrus.WithError(err).Warn("wakeword: ready cue failed, continuing")
		}
	}

	stream, err := l.Device.OpenFloatStream(vad.FrameSize)
	if err != nil {
		return err
	}
	defer stream.Close()

	start := time.Now()
	machine := listen.NewMachine(0.3, l.RecordSilence, start)
	carry := make([]float32, vad.CarrySize)
	var recorded []float32

	for {
		if time.Since(start) >= l.RecordTimeout {
			break
		}

		frame, err := stream.Read(ctx)
		if err != nil {
			return err
		}

		probability, newCarry, err := l.VAD.Process(frame, carry)
		if err != nil {
			return err
		}
		carry = newCarry

		state := machine.Observe(probability, time.Now())
		if state == listen.Recording || state == listen.Finalising {
			recorded = append(recorded, frame...)
		}
		if state == listen.Finalising {
			break
		}
	}

	result, err := l.Transcriber.Transcribe(ctx, recorded, sampleRate)
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil
	}

	l.setState(Injecting)
	return l.route(ctx, result.Text)
}

// route delivers a transcribed utterance: one live session gets
// everything; with several, a leading name token addresses one directly,
// otherwise the text goes to whichever session started most recently.
func (l *Listener) route(ctx context.Context, text string) error {
	if l.Sessions == nil || l.Deliver == nil {
		return nil
	}
	entries, err := l.Sessions.Snapshot()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if len(entries) == 1 {
		return l.Deliver.Inject(ctx, entries[0], text)
	}

	fields := strings.Fields(text)
	if len(fields) > 0 {
		for _, e := range entries {
			if strings.EqualFold(fields[0], e.Name) {
				remainder := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))
				return l.Deliver.Inject(ctx, e, remainder)
			}
		}
	}

	// registry.Store.Snapshot sorts ascending by StartedAt: the most
	// recently started live session is the last entry.
	return l.Deliver.Inject(ctx, entries[len(entries)-1], text)
}

func peakOf(scores map[string]float64) float64 {
	var max float64
	for _, v := range scores {
		if v > max {
			max = v
		}
	}
	return max
}

func maxOf(values []float64) float64 {
	var max float64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}

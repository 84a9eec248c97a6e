package listen

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/errs"
	"github.com/voxmcp/voxmcp/internal/mic"
	"github.com/voxmcp/voxmcp/pkg/capture"
	"github.com/voxmcp/voxmcp/pkg/transcribe"
	"github.com/voxmcp/voxmcp/pkg/vad"
)

const (
	frameSize  = vad.FrameSize
	carrySize  = vad.CarrySize
	sampleRate = 16000
)

// Yielder is implemented by the wake-word listener. RequestYield asks it to
// release the mic at its next safe checkpoint; the actual bounded wait for
// that release happens inside the mic arbiter, not here.
type Yielder interface {
	RequestYield()
	Running() bool
}

// defaultVADThreshold is the speech-probability cutoff used when the
// config doesn't override it.
const defaultVADThreshold = 0.3

// Pipeline implements the blocking listen operation.
type Pipeline struct {
	Arbiter     *mic.Arbiter
	Device      capture.Device
	VAD         vad.Detector
	Transcriber transcribe.Transcriber
	WakeWord    Yielder
	Muted       func() bool
	ReadyCue    func(ctx context.Context) error

	// VADThreshold overrides defaultVADThreshold when positive (the
	// config file's stt.vad_threshold).
	VADThreshold float64
}

// NewPipeline wires a Pipeline. ReadyCue may be nil to skip the cue (the
// HTTP push-to-talk endpoint provides its own).
func NewPipeline(arbiter *mic.Arbiter, device capture.Device, detector vad.Detector, transcriber transcribe.Transcriber, wakeword Yielder, muted func() bool) *Pipeline {
	return &Pipeline{
		Arbiter:     arbiter,
		Device:      device,
		VAD:         detector,
		Transcriber: transcriber,
		WakeWord:    wakeword,
		Muted:       muted,
	}
}

// micYieldBound is how long AcquireListen waits for a wake-word holder to
// release the mic before taking it over regardless.
const micYieldBound = 500 * time.Millisecond

// Outcome is the result surfaced to the listen tool.
type Outcome struct {
	Text            string
	Confidence      float64
	DurationMS      int64
	TranscriptionMS int64
}

// Listen captures one utterance: acquire the mic (yielding the wake-word
// listener if needed), wait for speech, record until trailing silence,
// then transcribe.
func (p *Pipeline) Listen(ctx context.Context, cancel <-chan struct{}, timeout, silenceThreshold time.Duration, skipCue bool) (Outcome, error) {
	if p.Muted != nil && p.Muted() {
		return Outcome{}, errs.New(errs.KindMuted, "listen while muted")
	}
	if timeout <= 0 {
		return Outcome{}, errs.New(errs.KindTimeout, "listen timeout elapsed")
	}

	start := time.Now()
	requestID := uuid.NewString()
	log := logrus.WithField("request_id", requestID)

	if p.WakeWord != nil && p.WakeWord.Running() {
		p.WakeWord.RequestYield()
	}
	if !p.Arbiter.AcquireListen(micYieldBound) {
		return Outcome{}, errs.New(errs.KindMicBusy, "a listen is already in flight on this process")
	}
	defer p.Arbiter.Release(mic.HolderListen)

	if !skipCue && p.ReadyCue != nil {
		if err := p.ReadyCue(ctx); err != nil {
			log.WithError(err).Warn("listen: ready cue failed, continuing")
		}
	}

	stream, err := p.Device.OpenFloatStream(frameSize)
	if err != nil {
		return Outcome{}, errs.Newf(errs.KindEngineUnavailable, "opening capture stream: %v", err)
	}
	defer stream.Close()

	threshold := p.VADThreshold
	if threshold <= 0 {
		threshold = defaultVADThreshold
	}
	machine := NewMachine(threshold, silenceThreshold, start)

	var recorded []float32
	carry := make([]float32, carrySize)

	for {
		select {
		case <-cancel:
			return Outcome{}, errs.New(errs.KindCancelled, "listen cancelled")
		case <-ctx.Done():
			return Outcome{}, errs.New(errs.KindCancelled, "listen cancelled")
		default:
		}

		now := time.Now()
		if machine.WaitingTooLong(now, timeout) {
			return Outcome{}, errs.New(errs.KindTimeout, "no speech detected before timeout")
		}

		frame, err := stream.Read(ctx)
		if err != nil {
			return Outcome{}, errs.Newf(errs.KindEngineUnavailable, "capture read failed: %v", err)
		}

		probability, newCarry, err := p.VAD.Process(frame, carry)
		if err != nil {
			return Outcome{}, errs.Newf(errs.KindEngineUnavailable, "vad failed: %v", err)
		}
		carry = newCarry

		state := machine.Observe(probability, now)
		if state == Recording || state == Finalising {
			recorded = append(recorded, frame...)
		}
		if state == Finalising {
			break
		}
	}

	transcribeStart := time.Now()
	result, err := p.Transcriber.Transcribe(ctx, recorded, sampleRate)
	transcriptionMS := time.Since(transcribeStart).Milliseconds()
	if err != nil {
		return Outcome{}, errs.Newf(errs.KindEngineUnavailable, "transcription failed: %v", err)
	}

	confidence := math.Exp(result.AvgLogProb)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	log.WithField("chars", len(result.Text)).Debug("listen: request completed")
	return Outcome{
		Text:            result.Text,
		Confidence:      confidence,
		DurationMS:      time.Since(start).Milliseconds(),
		TranscriptionMS: transcriptionMS,
	}, nil
}

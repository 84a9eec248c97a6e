package speech

import (
	"context"
	"sync/atomic"

	"github.com/voxmcp/voxmcp/internal/errs"
	"github.com/voxmcp/voxmcp/internal/voice"
)

// Pipeline implements the speak operation: resolve voice, enforce the
// session-name invariant, respect mute, then hand off to the
// queue/worker pair.
type Pipeline struct {
	Queue    *Queue
	Worker   *Worker
	Voices   *voice.Registry
	Sink     *Sink
	SessionName func() string

	muted atomic.Bool
}

// NewPipeline wires a Pipeline to its collaborators and starts the
// worker goroutine. The queue is stopped when ctx ends so the worker's
// blocking wait wakes during shutdown.
func NewPipeline(ctx context.Context, voices *voice.Registry, sink *Sink, worker *Worker, queue *Queue, sessionName func() string) *Pipeline {
	p := &Pipeline{Queue: queue, Worker: worker, Voices: voices, Sink: sink, SessionName: sessionName}
	go worker.Run(ctx)
	go func() {
		<-ctx.Done()
		queue.Stop()
	}()
	return p
}

// Outcome is the result surfaced to the speak tool.
type Outcome struct {
	Success       bool
	Voice         string
	AutoAssigned  bool
	Queued        bool
	DurationMS    int64
	SynthesisMS   int64
	NameOccupied  bool
	SessionName   string
	SessionVoice  string
}

// SetMuted toggles the process-wide mute flag.
func (p *Pipeline) SetMuted(muted bool) { p.muted.Store(muted) }

// Muted reports the current mute flag.
func (p *Pipeline) Muted() bool { return p.muted.Load() }

// Speak resolves the voice for agentName and enqueues the request,
// waiting for completion when block is set.
func (p *Pipeline) Speak(ctx context.Context, agentName, text string, speed float64, block bool) (Outcome, error) {
	voiceID, autoAssigned := p.Voices.Resolve(agentName)

	if currentName := p.SessionName(); currentName != "" && agentName != currentName && agentName != "default" {
		// Only the session's own name (or the "default" alias) may
		// speak as this process; any other name is a collision with
		// whatever live session actually holds it.
		currentVoice, _ := p.Voices.Resolve(currentName)
		return Outcome{
			Success:      false,
			NameOccupied: true,
			SessionName:  currentName,
			SessionVoice: currentVoice,
		}, errs.Newf(errs.KindNameOccupied, "this session speaks as %q, not %q", currentName, agentName).WithContext(map[string]any{
			"session_name":  currentName,
			"session_voice": currentVoice,
		})
	}

	if p.Muted() {
		return Outcome{Success: true, Voice: voiceID, AutoAssigned: autoAssigned}, nil
	}

	req := &Request{AgentName: agentName, VoiceID: voiceID, Text: text, Speed: speed, Block: block}
	result, err := p.Queue.Submit(req)
	if err != nil {
		return Outcome{}, err
	}
	if result.Queued {
		return Outcome{Success: true, Voice: voiceID, AutoAssigned: autoAssigned, Queued: true}, nil
	}
	if !result.Success {
		return Outcome{Success: false, Voice: voiceID, AutoAssigned: autoAssigned}, result.Err
	}
	return Outcome{
		Success:      true,
		Voice:        voiceID,
		AutoAssigned: autoAssigned,
		DurationMS:   result.DurationMS,
		SynthesisMS:  result.SynthesisMS,
	}, nil
}

// Stop implements the speech half of the `stop` tool: kills current
// playback and drains any queued requests, failing their blocked callers.
func (p *Pipeline) Stop() (stoppedPlayback bool, drained int) {
	drained = p.Queue.Depth()
	stoppedPlayback = p.Sink.Stop()
	p.Queue.Drain(errs.New(errs.KindCancelled, "speech queue drained by stop"))
	return stoppedPlayback, drained
}

package speech

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/pkg/synth"
)

const chunkThreshold = 500

// Worker pops requests one at a time, synthesises each chunk of text,
// and plays it through the Sink. No retries: a synthesis failure is
// fatal to that one request only, and the queue continues.
type Worker struct {
	queue *Queue
	synth synth.Synthesizer
	sink  *Sink
}

// NewWorker wires a Worker to its queue, synthesis engine, and sink.
func NewWorker(queue *Queue, synthesizer synth.Synthesizer, sink *Sink) *Worker {
	return &Worker{queue: queue, synth: synthesizer, sink: sink}
}

// Run processes requests until ctx is cancelled or the queue stops.
func (w *Worker) Run(ctx context.Context) {
	logrus.Info("speech: worker started")
	defer logrus.Info("speech: worker stopped")

	for {
		req := w.queue.next(ctx)
		if req == nil {
			if ctx.Err() != nil || w.queueStopped() {
				return
			}
			continue
		}
		w.process(ctx, req)
	}
}

func (w *Worker) queueStopped() bool {
	w.queue.mu.Lock()
	defer w.queue.mu.Unlock()
	return w.queue.stopped && len(w.queue.items) == 0
}

func (w *Worker) process(ctx context.Context, req *Request) {
	start := time.Now()
	chunks := chunkText(req.Text)

	var synthesisMS, playbackMS int64
	for _, chunk := range chunks {
		synthStart := time.Now()
		result, err := w.synth.Synthesize(ctx, req.VoiceID, chunk, req.Speed)
		synthesisMS += time.Since(synthStart).Milliseconds()
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"agent": req.AgentName, "request_id": req.RequestID}).Error("speech: synthesis failed")
			w.queue.complete(req, Result{Success: false, Err: err, SynthesisMS: synthesisMS})
			return
		}

		playStart := time.Now()
		if err := w.sink.Play(ctx, result.PCM, result.SampleRate); err != nil {
			playbackMS += time.Since(playStart).Milliseconds()
			logrus.WithError(err).WithFields(logrus.Fields{"agent": req.AgentName, "request_id": req.RequestID}).Warn("speech: playback failed")
			w.queue.complete(req, Result{Success: false, Err: err, SynthesisMS: synthesisMS, PlaybackMS: playbackMS})
			return
		}
		playbackMS += time.Since(playStart).Milliseconds()
	}

	logrus.WithFields(logrus.Fields{"agent": req.AgentName, "request_id": req.RequestID}).Debug("speech: request completed")
	w.queue.complete(req, Result{
		Success:     true,
		SynthesisMS: synthesisMS,
		PlaybackMS:  playbackMS,
		DurationMS:  time.Since(start).Milliseconds(),
	})
}

// chunkText splits text on sentence terminators when longer than
// chunkThreshold characters; short text is returned as a single chunk.
func chunkText(text string) []string {
	if len(text) <= chunkThreshold {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && b.Len() >= 1 {
			chunks = append(chunks, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

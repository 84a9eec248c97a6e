package transcribe

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a deterministic Transcriber used in tests. By default it derives
// text from the PCM length so the listen pipeline's end-to-end tests can
// assert on something other than a constant string; callers needing an
// exact transcript can use NextResult to queue one.
type Fake struct {
	mu      sync.Mutex
	queue   []Result
	Calls   int
	ready   bool
}

func NewFake() *Fake {
	return &Fake{ready: true}
}

// NextResult queues a result to return on the next Transcribe call,
// overriding the default length-derived behaviour.
func (f *Fake) NextResult(r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, r)
}

func (f *Fake) Transcribe(ctx context.Context, pcm []float32, sampleRate int) (Result, error) {
	f.mu.Lock()
	f.Calls++
	if len(f.queue) > 0 {
		r := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return r, nil
	}
	f.mu.Unlock()

	if len(pcm) == 0 {
		return Result{Text: "", AvgLogProb: -10}, nil
	}
	return Result{Text: fmt.Sprintf("heard %d samples", len(pcm)), AvgLogProb: -0.1}, nil
}

func (f *Fake) Ready() bool { return f.ready }

func (f *Fake) SetReady(ready bool) { f.ready = ready }

func (f *Fake) Close() error { return nil }

// Package speech implements the speech pipeline and its serial queue:
// one producer-side FIFO, consumed by a single worker, feeding the
// synthesis adapter and then the cross-process audio lock.
package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueStopped is returned by Submit once Stop has been called.
var ErrQueueStopped = errors.New("speech: queue stopped")

// Request is one enqueued speak operation.
type Request struct {
	AgentName string
	VoiceID   string
	Text      string
	Speed     float64
	Block     bool

	// RequestID identifies this request in logs across its synthesis and
	// playback stages; assigned by Submit.
	RequestID string

	submittedAt time.Time
	done        chan Result
}

// Result is delivered to a blocking caller once the request completes (or
// immediately, with Queued=true, for non-blocking callers).
type Result struct {
	Queued        bool
	Success       bool
	Err           error
	SynthesisMS   int64
	PlaybackMS    int64
	DurationMS    int64
}

// Queue is an unbounded FIFO of speech Requests, served by exactly one
// worker. There is no backpressure signal to the caller beyond blocking
// on completion; Submit is only rejected once the queue has been stopped.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*Request
	stopped  bool
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit appends req to the tail of the queue and wakes the worker. If
// req.Block, Submit blocks until the worker signals completion and
// returns that Result; otherwise it returns immediately with
// Result{Queued: true}.
func (q *Queue) Submit(req *Request) (Result, error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return Result{}, ErrQueueStopped
	}
	req.submittedAt = time.Now()
	req.RequestID = uuid.NewString()
	if req.Block {
		req.done = make(chan Result, 1)
	}
	q.items = append(q.items, req)
	q.mu.Unlock()
	q.cond.Signal()

	if !req.Block {
		return Result{Queued: true}, nil
	}
	return <-req.done, nil
}

// next blocks until an item is available or the queue is drained-and-stopped.
// ctx is checked before each wait, but cancelling it does not by itself wake
// a blocked wait; only Submit or Stop does. Returns nil when the queue is
// stopping or ctx was already done.
func (q *Queue) next(ctx context.Context) *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.stopped {
		if ctx.Err() != nil {
			return nil
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// Depth reports the number of requests not yet picked up by the worker.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain empties the queue, completing every still-blocked caller with the
// given error (used by `stop`).
func (q *Queue) Drain(err error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		if item.done != nil {
			item.done <- Result{Success: false, Err: err}
		}
	}
}

// Stop marks the queue stopped and wakes any blocked worker; queued-but-
// undelivered requests are left for the caller to Drain first if desired.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Queue) complete(req *Request, result Result) {
	if req.done != nil {
		req.done <- result
	}
}

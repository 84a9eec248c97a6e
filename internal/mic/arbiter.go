// Package mic implements the in-process microphone arbiter: the
// wake-word listener and the listen pipeline both want the
// microphone, but the device is non-reentrant, so exactly one of them may
// hold it at a time. The arbiter also lets the listen pipeline preempt the
// wake-word listener with a bounded yield instead of blocking forever.
package mic

import (
	"sync"
	"time"
)

// Holder identifies who currently owns the microphone.
type Holder int

const (
	HolderNone Holder = iota
	HolderWakeWord
	HolderListen
)

// Arbiter is a non-reentrant mutex over "who owns the mic right now", plus
// a yield signal the listen pipeline can raise to ask the wake-word
// listener to release the device.
type Arbiter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder Holder
	yield  bool
}

func New() *Arbiter {
	a := &Arbiter{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Acquire blocks until the mic is free, then claims it for who. Used by
// the wake-word listener, which has no competing notion of "busy"; it
// simply waits its turn.
func (a *Arbiter) Acquire(who Holder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.holder != HolderNone {
		a.cond.Wait()
	}
	a.holder = who
	a.yield = false
}

// AcquireListen claims the mic for a listen request: if another listen
// already holds it, it returns false immediately. If the
// wake-word listener holds it, AcquireListen raises the yield flag and
// waits up to bound for it to release, then takes the mic regardless of
// whether the wake-word listener actually yielded in time.
func (a *Arbiter) AcquireListen(bound time.Duration) bool {
	a.mu.Lock()
	if a.holder == HolderListen {
		a.mu.Unlock()
		return false
	}

	if a.holder == HolderWakeWord {
		a.yield = true
		a.cond.Broadcast()
		deadline := time.Now().Add(bound)
		for a.holder == HolderWakeWord && time.Now().Before(deadline) {
			a.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			a.mu.Lock()
		}
	}

	a.holder = HolderListen
	a.yield = false
	a.mu.Unlock()
	return true
}

// Release frees the mic and wakes any waiter.
func (a *Arbiter) Release(who Holder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != who {
		return
	}
	a.holder = HolderNone
	a.yield = false
	a.cond.Broadcast()
}

// RequestYield asks whoever currently holds the mic to give it up at their
// next safe checkpoint.
func (a *Arbiter) RequestYield() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.yield = true
	a.cond.Broadcast()
}

// ShouldYield is polled by the current holder at safe checkpoints (e.g.
// between audio frames).
func (a *Arbiter) ShouldYield() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.yield
}

// CurrentHolder reports who holds the mic right now (HolderNone if free).
func (a *Arbiter) CurrentHolder() Holder {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

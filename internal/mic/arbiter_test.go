package mic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	a := New()
	a.Acquire(HolderWakeWord)
	assert.Equal(t, HolderWakeWord, a.CurrentHolder())
	a.Release(HolderWakeWord)
	assert.Equal(t, HolderNone, a.CurrentHolder())
}

func TestAcquireBlocksUntilFree(t *testing.T) {
	a := New()
	a.Acquire(HolderWakeWord)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		a.Acquire(HolderListen)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("listen acquired mic while wake-word still holds it")
	case <-time.After(50 * time.Millisecond):
	}

	a.Release(HolderWakeWord)
	wg.Wait()
	assert.Equal(t, HolderListen, a.CurrentHolder())
}

func TestAcquireListenReturnsFalseWhenAnotherListenHolds(t *testing.T) {
	a := New()
	assert.True(t, a.AcquireListen(500*time.Millisecond))
	assert.False(t, a.AcquireListen(500*time.Millisecond))
}

func TestAcquireListenYieldsWakeWordThenTakesMic(t *testing.T) {
	a := New()
	a.Acquire(HolderWakeWord)

	released := make(chan struct{})
	go func() {
		for !a.ShouldYield() {
			time.Sleep(2 * time.Millisecond)
		}
		a.Release(HolderWakeWord)
		close(released)
	}()

	ok := a.AcquireListen(500 * time.Millisecond)
	assert.True(t, ok)
	<-released
	assert.Equal(t, HolderListen, a.CurrentHolder())
}

func TestAcquireListenTakesMicAfterBoundEvenIfWakeWordStuck(t *testing.T) {
	a := New()
	a.Acquire(HolderWakeWord)

	start := time.Now()
	ok := a.AcquireListen(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Equal(t, HolderListen, a.CurrentHolder())
}

func TestRequestYieldIsVisibleToHolder(t *testing.T) {
	a := New()
	a.Acquire(HolderWakeWord)
	assert.False(t, a.ShouldYield())

	a.RequestYield()
	assert.True(t, a.ShouldYield())

	a.Release(HolderWakeWord)
	assert.False(t, a.ShouldYield(), "yield flag resets once the holder releases")
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	a := New()
	a.Acquire(HolderWakeWord)
	a.Release(HolderListen)
	assert.Equal(t, HolderWakeWord, a.CurrentHolder())
}

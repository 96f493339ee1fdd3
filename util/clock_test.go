package util

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock_Now(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), clock.Now())
}

func TestManualClock_TickerDeliversOnePerPeriod(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var mu sync.Mutex
	var ticks []time.Time
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			at := <-ticker.C()
			mu.Lock()
			ticks = append(ticks, at)
			mu.Unlock()
		}
	}()

	clock.Advance(5 * time.Millisecond) // not due yet
	clock.Advance(45 * time.Millisecond)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ticks, 5)
	for i, at := range ticks {
		assert.Equal(t, time.Unix(0, 0).Add(time.Duration(i+1)*10*time.Millisecond), at)
	}
}

func TestManualClock_StoppedTickerDoesNotBlock(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Millisecond)
	ticker.Stop()
	ticker.Stop() // idempotent

	finished := make(chan struct{})
	go func() {
		clock.Advance(10 * time.Millisecond)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Advance blocked on a stopped ticker")
	}
}

func TestManualClock_WaitForTicker(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	go clock.NewTicker(time.Second)
	clock.WaitForTicker()
}

func TestRealClock(t *testing.T) {
	var clock Clock = RealClock{}
	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
	assert.WithinDuration(t, time.Now(), clock.Now(), time.Second)
}

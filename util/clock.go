package util

import (
	"sync"
	"time"
)

// Ticker delivers ticks on C until Stop is called.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts time so that periodic loops can be driven by a
// ManualClock in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// RealClock uses the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// ManualClock is a virtual clock. Time only moves when Advance is called;
// every ticker whose deadline passed receives one tick per elapsed period.
// Ticks are delivered synchronously: Advance returns once every due tick
// has been received (or the ticker was stopped).
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
	created chan struct{}
}

// NewManualClock creates a virtual clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, created: make(chan struct{}, 1)}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		c:      make(chan time.Time),
		done:   make(chan struct{}),
		period: d,
		next:   m.now.Add(d),
	}
	m.tickers = append(m.tickers, t)
	select {
	case m.created <- struct{}{}:
	default:
	}
	return t
}

// WaitForTicker blocks until at least one ticker has been created since
// the last call.
func (m *ManualClock) WaitForTicker() {
	<-m.created
}

// Advance moves the clock forward by d and fires due tickers. It must be
// called from a single goroutine.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	tickers := make([]*manualTicker, len(m.tickers))
	copy(tickers, m.tickers)
	m.mu.Unlock()

	for _, t := range tickers {
	deliver:
		for !t.next.After(now) {
			at := t.next
			t.next = t.next.Add(t.period)
			select {
			case t.c <- at:
			case <-t.done:
				break deliver
			}
		}
	}
}

// Step advances the clock by exactly d and is shorthand for tick driven
// tests: Step(period) fires each ticker with that period once.
func (m *ManualClock) Step(d time.Duration, n int) {
	for i := 0; i < n; i++ {
		m.Advance(d)
	}
}

type manualTicker struct {
	c        chan time.Time
	done     chan struct{}
	stopOnce sync.Once
	period   time.Duration
	next     time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

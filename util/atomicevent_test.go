package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAtomicEvent(t *testing.T) {
	ae := NewAtomicEvent[any]()
	assert.NotNil(t, ae, "NewAtomicEvent should not return nil")
	assert.NotNil(t, ae.notify, "notify channel should be initialized")
}

func TestNewAtomicEventWith(t *testing.T) {
	ae := NewAtomicEventWith("initial")
	assert.Equal(t, "initial", ae.Value())
	select {
	case <-ae.Channel():
		t.Fatal("initial value must not raise a notification")
	default:
	}
}

func TestSendAndValue(t *testing.T) {
	aeInt := NewAtomicEvent[int]()
	aeInt.Send(123)
	assert.Equal(t, 123, aeInt.Value(), "Value should be 123")

	type testStruct struct {
		Field int
	}
	ts := testStruct{Field: 42}
	aeStruct := NewAtomicEvent[testStruct]()
	aeStruct.Send(ts)
	assert.Equal(t, ts, aeStruct.Value(), "Value should be the test struct")
}

func TestNotificationChannel(t *testing.T) {
	ae := NewAtomicEvent[string]()

	ae.Send("event1")
	select {
	case <-ae.Channel():
	default:
		t.Fatal("should have received a notification")
	}

	select {
	case <-ae.Channel():
		t.Fatal("channel should be empty")
	default:
	}

	// Send multiple events, should only get one notification
	ae.Send("event2")
	ae.Send("event3")
	<-ae.Channel()
	select {
	case <-ae.Channel():
		t.Fatal("two sends must raise a single notification")
	default:
	}

	assert.Equal(t, "event3", ae.Value(), "Value should be the last event sent")
}

// pair mimics a (mode, colour) value whose halves must always match.
type pair struct {
	Mode  int
	Color [3]float64
}

func makePair(i int) pair {
	v := float64(i)
	return pair{Mode: i % 2, Color: [3]float64{v, -v, v * 2}}
}

func (p pair) coherent() bool {
	return p.Color[1] == -p.Color[0] && p.Color[2] == 2*p.Color[0] && int(p.Color[0])%2 == p.Mode
}

func TestNoTornReads(t *testing.T) {
	ae := NewAtomicEventWith(makePair(0))
	const writes = 20000

	var wg sync.WaitGroup
	done := make(chan struct{})
	torn := 0

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				if !ae.Value().coherent() {
					torn++
				}
			}
		}
	}()

	for i := 1; i <= writes; i++ {
		ae.Send(makePair(i))
	}
	close(done)
	wg.Wait()

	assert.Zero(t, torn, "reader observed a value that was never written")
	assert.Equal(t, makePair(writes), ae.Value())
}

func TestConcurrency(t *testing.T) {
	ae := NewAtomicEvent[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			ae.Send(i)
		}
		close(done)
	}()

	lastRead := -1
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		for {
			select {
			case <-ae.Channel():
				val := ae.Value()
				if val < lastRead {
					t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
				}
				lastRead = val
			case <-done:
				return
			}
		}
	}()

	readerWg.Wait()

	assert.Equal(t, 999, ae.Value(), "Final value should be 999")
}

package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackEvent_ListenNotify(t *testing.T) {
	event := NewCallbackEvent[string](false)
	require.Equal(t, 0, event.ListenerCount())

	var got []string
	unregister := event.Listen(func(s string) { got = append(got, s) })
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("a")
	event.Notify("b")
	assert.Equal(t, []string{"a", "b"}, got)

	unregister()
	assert.Equal(t, 0, event.ListenerCount())
	event.Notify("c")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCallbackEvent_SendLastEventOnListen(t *testing.T) {
	event := NewCallbackEvent[int](true)

	var first []int
	event.Listen(func(v int) { first = append(first, v) })
	assert.Empty(t, first, "no replay before the first Notify")

	event.Notify(7)
	event.Notify(8)

	var late []int
	event.Listen(func(v int) { late = append(late, v) })
	assert.Equal(t, []int{8}, late)
	assert.Equal(t, []int{7, 8}, first)
}

func TestCallbackEvent_WithoutReplay(t *testing.T) {
	event := NewCallbackEvent[int](false)
	event.Notify(1)

	called := false
	event.Listen(func(int) { called = true })
	assert.False(t, called)
}

func TestCallbackEvent_ConcurrentNotify(t *testing.T) {
	event := NewCallbackEvent[int](true)
	var mu sync.Mutex
	count := 0
	event.Listen(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				event.Notify(i*100 + j)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1000, count)
}

func TestCallbackEvent_NilCallbackPanics(t *testing.T) {
	event := NewCallbackEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}

package util

import (
	"sync"
)

// CallbackEvent provides pub/sub behaviour with typed callbacks.
// Listeners are invoked synchronously on the goroutine calling Notify and
// must not block.
type CallbackEvent[T any] struct {
	mu                    sync.RWMutex
	listeners             map[uint64]func(T)
	nextID                uint64
	sendLastEventOnListen bool
	lastEvent             *T
}

// NewCallbackEvent creates a new CallbackEvent. If sendLastEventOnListen is
// true, a new listener is called immediately with the last notified value.
func NewCallbackEvent[T any](sendLastEventOnListen bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners:             make(map[uint64]func(T)),
		sendLastEventOnListen: sendLastEventOnListen,
	}
}

// Listen registers callback and returns a function removing it again.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	var last *T
	if e.sendLastEventOnListen && e.lastEvent != nil {
		v := *e.lastEvent
		last = &v
	}
	e.mu.Unlock()

	// outside the lock, the callback may call back into us
	if last != nil {
		callback(*last)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify calls all registered listeners with value.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.sendLastEventOnListen {
		v := value
		e.lastEvent = &v
	}
	listeners := make([]func(T), 0, len(e.listeners))
	for _, callback := range e.listeners {
		listeners = append(listeners, callback)
	}
	e.mu.Unlock()

	for _, callback := range listeners {
		callback(value)
	}
}

// ListenerCount returns the current number of registered listeners.
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

package util

import (
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn in a new goroutine. A panic is logged together with its
// stack before it is re-raised, so it is not swallowed by the terminal UI.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("PANIC in go-routine", "name", name, "panic", r, "stack", string(debug.Stack()))
				panic(r)
			}
		}()
		fn()
	}()
}

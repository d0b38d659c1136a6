package log

import (
	"fmt"
	"runtime/debug"
)

// SafeGo runs fn in a new goroutine and logs (instead of crashing on) any panic.
// name identifies the goroutine in the log entry.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatChat, "goroutine panicked", "goroutine", name,
					"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

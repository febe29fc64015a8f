// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var (
	goroutinesRunning atomic.Int64
	goroutinesStarted atomic.Int64
)

// GetGoroutineCount returns how many SafeGo goroutines are still running
func GetGoroutineCount() int64 {
	return goroutinesRunning.Load()
}

// SafeGo runs fn on its own goroutine. A panic is logged with its stack and
// ends only that goroutine, so one broken poll session or reload cannot take
// the bridge down.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	goroutinesStarted.Add(1)
	goroutinesRunning.Add(1)

	go func() {
		defer goroutinesRunning.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				reportPanic(logger, name, r, debug.Stack())
			}
		}()
		fn()
	}()
}

func reportPanic(logger arbor.ILogger, name string, r interface{}, stack []byte) {
	if logger == nil {
		fmt.Fprintf(os.Stderr, "panic in %s: %v\n%s\n", name, r, stack)
		return
	}
	logger.Error().
		Str("goroutine", name).
		Str("panic", fmt.Sprint(r)).
		Str("stack", string(stack)).
		Msg("Goroutine panicked and was stopped")
}

// Package async provides panic-recovering goroutine launches so a single
// background task cannot take down the kernel process.
package async

import (
	"runtime/debug"

	"evkernel/internal/logging"
)

// Go launches fn in a new goroutine. A panic inside fn is recovered, logged
// against logger with name tagging the offending goroutine, and swallowed;
// the process keeps running.
func Go(logger logging.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover is a deferred panic guard usable directly inside a goroutine body.
// It is nil-safe: a nil logger does not itself panic.
func Recover(logger logging.Logger, name string) {
	if r := recover(); r != nil {
		logging.OrNop(logger).Error("goroutine panic [%s]: %v\n%s", name, r, debug.Stack())
	}
}

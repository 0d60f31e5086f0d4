// Package panics wraps goroutine and timer spawns with panic recovery and
// logging, the way every worker goroutine in this lineage is launched via
// util/panics.GoroutineWrapperFunc rather than a bare "go func(){}()".
//
// Unlike the daemon this lineage ships, the consensus core is a library:
// a panicking worker must not call os.Exit on its embedder's behalf, so
// recovery here logs at Critical and returns control to the caller.
package panics

import (
	"runtime/debug"
	"time"

	"github.com/btcsuite/btclog"
)

// HandlePanic recovers a panic, logging it (and the captured goroutine
// stack trace, if any) at Critical severity.
func HandlePanic(log btclog.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}
	log.Criticalf("Fatal error: %+v", err)
	if goroutineStackTrace != nil {
		log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
	}
	log.Criticalf("Stack trace: %s", debug.Stack())
}

// GoroutineWrapperFunc returns a goroutine wrapper that handles panics and
// writes them to log instead of crashing the process.
func GoroutineWrapperFunc(log btclog.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc returns a time.AfterFunc wrapper that handles
// panics raised by the deferred function.
func AfterFuncWrapperFunc(log btclog.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		stackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, stackTrace)
			f()
		})
	}
}

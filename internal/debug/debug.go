// Package debug provides a process-wide gated logger for development tracing.
package debug

import (
	"fmt"
	"os"
	"sync/atomic"
)

var enabled atomic.Bool

// Enable turns on debug logging for the remainder of the process lifetime.
func Enable() {
	enabled.Store(true)
}

// Enabled reports whether debug logging is currently on.
func Enabled() bool {
	return enabled.Load()
}

// Logf writes a debug line to stderr when debug logging is enabled.
// Call sites should not format expensive values unconditionally; guard with
// Enabled() first if formatting itself is costly.
func Logf(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

func init() {
	if os.Getenv("REPLICA_DEBUG") == "1" {
		enabled.Store(true)
	}
}

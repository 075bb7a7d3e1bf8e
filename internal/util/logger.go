// Package util provides helper functions for logging events
package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

var debug atomic.Bool

// SetupLogger configures the standard logger used by every component.
// Timestamps are written by the helpers below, so the default flags are cleared.
func SetupLogger(verbose bool) {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
	debug.Store(verbose)
}

// SetOutput redirects log output, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetDebug toggles Debug output.
func SetDebug(on bool) { debug.Store(on) }

// Debug prints per-tick trace messages when debug output is enabled.
func Debug(msg string, args ...any) {
	if !debug.Load() {
		return
	}
	log.Printf("[DEBUG] %s | %s", time.Now().Format(time.RFC3339Nano), fmt.Sprintf(msg, args...))
}

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) {
	log.Printf("[INFO] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Warn prints recoverable problems (dropped packets, missed reports).
func Warn(msg string, args ...any) {
	log.Printf("[WARN] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Error prints error messages with timestamp.
func Error(msg string, args ...any) {
	log.Printf("[ERROR] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Discard silences all helpers; it is meant for tests that tick thousands of times.
func Discard() {
	log.SetOutput(io.Discard)
	debug.Store(false)
}

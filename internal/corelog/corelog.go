// Package corelog is a thin wrapper around the standard library's log
// package. The teacher repo logs exclusively through log.Printf with no
// structured logging library anywhere in its tree; this core does the same
// rather than reaching for zap/zerolog, since nothing here needs levels,
// sampling, or structured fields beyond what fmt.Sprintf already gives a
// handful of call sites.
package corelog

import (
	"fmt"
	"log"
	"os"
)

// Logger is the minimal logging surface of the core. Its call site is the
// init-timeout abort in execctx.Init (Fatalf).
type Logger struct {
	std *log.Logger
}

// New creates a Logger writing to stderr with the app key as a prefix.
func New(prefix string) *Logger {
	return &Logger{std: log.New(os.Stderr, "["+prefix+"] ", log.LstdFlags)}
}

// Errorf logs at error level (the teacher does not distinguish levels in
// its log.Printf call sites either; the prefix carries the context).
func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("error: "+format, args...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.std.Printf("debug: "+format, args...)
}

// Fatalf logs and then exits the process with status 1 — used only by the
// init-timeout watchdog, mirroring original_source's std::process::exit(1)
// after log::error!/log::debug!. A failed package init does not go through
// here: execctx.Init returns it to its caller as an error.
func (l *Logger) Fatalf(format string, args ...any) {
	l.std.Printf("fatal: "+format, args...)
	osExit(1)
}

// osExit is a var so tests can intercept process termination.
var osExit = os.Exit

// Sprintf is a small helper call sites use to build the standardized
// NativeInvokeError message prefix (spec §4.4, §7).
func Sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

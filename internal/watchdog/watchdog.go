// Package watchdog implements the watchdog runtime described in spec §4.5:
// a dedicated OS thread (via runtime.LockOSThread) that lives as long as the
// Runtime, plus deadline timers whose expiry runs arbitrary host code. The
// timers are plain time.AfterFunc timers; their callbacks run on their own
// goroutines, not on the dedicated thread.
//
// Grounded in original_source/src/ctx.rs's computation_watcher: a
// single-threaded tokio runtime spawned on its own OS thread that parks
// forever (futures::future::pending) and is woken by scheduled timers. The
// Go analogue parks on a channel receive instead of an async runtime, since
// Go has no equivalent of a current-thread executor to host one on.
package watchdog

import (
	"runtime"
	"sync"
	"time"
)

// Runtime is one watchdog: a dedicated goroutine (pinned to its own OS
// thread, mirroring the Rust original's dedicated thread) plus the deadlines
// scheduled through it. The Runtime keeps no record of those timers; each
// Task holds its own. Callers Schedule a deadline; the callback typically
// calls a terminate-execution hook or os.Exit(1).
type Runtime struct {
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// New starts the watchdog's dedicated goroutine and returns a handle to it.
// The goroutine lives until Close is called.
func New() *Runtime {
	r := &Runtime{closeCh: make(chan struct{})}
	started := make(chan struct{})
	go r.run(started)
	<-started
	return r
}

// run is the watchdog's dedicated OS thread. It parks on closeCh; actual
// timer work happens in goroutines spawned by Schedule, each independently
// cancellable — this mirrors the original's single-threaded runtime
// spawning per-deadline tasks rather than hosting one big select loop,
// which would require knowing every deadline up front.
func (r *Runtime) run(started chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	close(started)
	<-r.closeCh
}

// Task is a handle to one scheduled watchdog deadline. Cancel stops it from
// firing if it hasn't already; it is safe to call Cancel after the deadline
// has fired (a no-op in that case).
type Task struct {
	timer *time.Timer
}

// Cancel stops the task if it has not yet fired. Mirrors
// original_source's `init_timeout_watcher.abort()`.
func (t *Task) Cancel() {
	t.timer.Stop()
}

// Schedule arranges for fn to run once, after delay, on its own goroutine —
// unless Cancel is called first. Schedule never blocks the watchdog's
// dedicated thread; it merely registers a timer.Timer rooted in the Go
// runtime's timer wheel, consistent with the watchdog being "the only way a
// runaway script is stopped" rather than a scheduler in its own right.
func (r *Runtime) Schedule(delay time.Duration, fn func()) *Task {
	return &Task{timer: time.AfterFunc(delay, fn)}
}

// Close stops the watchdog's dedicated goroutine. Scheduled-but-not-fired
// tasks are not cancelled by Close; callers must Cancel them explicitly if
// they should not fire after the watchdog is torn down.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.closeCh)
}

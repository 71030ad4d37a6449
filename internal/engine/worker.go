//go:build !qjsengine

// Package engine implements the spec's Engine Worker and Isolate Pool
// (§3, §4.1, §4.2) on top of github.com/tommie/v8go — the teacher's primary
// JS engine dependency. Workers are thread-pinned and blocking by design:
// V8 isolates are not thread-mobile, so wrapping them in an async executor
// buys nothing (spec §9).
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cryguy/isolatecore/internal/core"
	v8 "github.com/tommie/v8go"
)

// JobContext is the context scope a Job is handed. It must not be retained
// past the Job's return (spec §3: "must not escape references to that
// scope").
type JobContext struct {
	iso *v8.Isolate
	ctx *v8.Context
}

// Iso returns the isolate the job is running in.
func (jc *JobContext) Iso() *v8.Isolate { return jc.iso }

// Ctx returns the fresh context scope borrowed for this job.
func (jc *JobContext) Ctx() *v8.Context { return jc.ctx }

// Job is an opaque callable that runs inside a context scope borrowed from
// a worker, returns once, and must not escape references to that scope
// (spec §3).
type Job func(jc *JobContext) (any, error)

// jobEnvelope is the shim the Pool wraps a user Job in: it captures a
// one-shot reply slot and forwards the job's return value (or the fact
// that termination fired) through it (spec §4.2 "Dispatch").
type jobEnvelope struct {
	job   Job
	reply chan jobReply
}

type jobReply struct {
	val any
	err error
	// terminated is true when the engine's termination signal fired
	// mid-execution; the job's own return value (if any) is discarded.
	terminated bool
}

// Worker is a dedicated OS thread owning one v8.Isolate (spec §3, §4.1).
// It compiles librt once at startup and then serially serves jobs off a
// capacity-1 channel — "serial semantics, no concurrent jobs in one
// worker" (spec §3).
type Worker struct {
	iso        *v8.Isolate
	librt      *v8.UnboundScript
	generation *core.GenerationBox
	maxMemory  uint64

	jobs chan jobEnvelope
	done chan struct{}

	// id is an opaque identifier useful to tests that need to observe
	// which physical worker ran a given job (spec §8 scenario S2).
	id int
}

// newWorker creates one Engine Worker: a fresh isolate with the configured
// heap cap, librt compiled once, and its serve loop started on a dedicated
// goroutine pinned via runtime.LockOSThread (spec §4.1 contract). It returns
// only once init (including librt compilation) has succeeded.
func newWorker(id int, cfg core.IsolateConfig) (*Worker, error) {
	var iso *v8.Isolate
	if cfg.MaxMemoryBytes > 0 {
		iso = v8.NewIsolate(v8.WithResourceConstraints(cfg.MaxMemoryBytes/2, cfg.MaxMemoryBytes))
	} else {
		iso = v8.NewIsolate()
	}

	librt, err := CompileLibrt(iso)
	if err != nil {
		iso.Dispose()
		return nil, fmt.Errorf("engine: compiling librt for worker %d: %w", id, err)
	}

	w := &Worker{
		iso:        iso,
		librt:      librt,
		generation: core.NewGenerationBox(),
		maxMemory:  cfg.MaxMemoryBytes,
		jobs:       make(chan jobEnvelope, 1),
		done:       make(chan struct{}),
		id:         id,
	}

	go w.serve()
	return w, nil
}

// Generation returns this worker's generation box. Advances by exactly 1
// per completed-or-terminated job (spec invariant).
func (w *Worker) Generation() *core.GenerationBox { return w.generation }

// ID returns the worker's opaque identifier (test observability only).
func (w *Worker) ID() int { return w.id }

// serve is the worker's blocking receive loop (spec §4.1 contract,
// steps 1-5). It never yields to any async runtime — only the blocking
// channel receive suspends it (spec §5).
func (w *Worker) serve() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)
	for env := range w.jobs {
		w.runOne(env)
	}
}

// runOne executes a single job inside a fresh context scope and performs
// the post-job protocol: generation bump under lock, termination-signal
// clear, instance-local cleanup, near-heap-limit hook deregistration
// (spec §4.1 steps 2-5).
func (w *Worker) runOne(env jobEnvelope) {
	ctx := v8.NewContext(w.iso)
	defer ctx.Close()

	if err := InstallLibrt(ctx, w.librt); err != nil {
		w.finish(env, jobReply{err: fmt.Errorf("engine: installing librt: %w", err)})
		return
	}

	stopHeapWatch, heapFired := w.watchHeap()

	terminated := false
	val, err := func() (v any, e error) {
		defer func() {
			if r := recover(); r != nil {
				terminated = true
				e = fmt.Errorf("%w: panic recovered: %v", core.ErrJobTerminated, r)
			}
		}()
		jc := &JobContext{iso: w.iso, ctx: ctx}
		return env.job(jc)
	}()

	// stopHeapWatch blocks until the watcher goroutine has fully exited, so
	// by the time it returns no further TerminateExecution call can race
	// with the cancellation below.
	stopHeapWatch()
	if heapFired.Load() {
		// v8go surfaces a terminated execution as an ordinary error from
		// RunScript, not a Go panic, so a heap-cap kill would otherwise go
		// unclassified here (spec §7 JobTermination/HeapLimitExceeded).
		terminated = true
	}

	// Clear any pending termination signal on the engine before the isolate
	// is handed back for reuse (spec §4.1 step 5b). Run unconditionally,
	// mirroring original_source/rusty-workers-runtime/src/isolate.rs's
	// unconditional context_scope.cancel_terminate_execution() in the
	// per-job cleanup sequence — without it a terminated isolate stays in
	// the terminating state and aborts the very next job's script run.
	w.iso.CancelTerminateExecution()

	w.finish(env, jobReply{val: val, err: err, terminated: terminated})
}

// finish performs the generation bump (inside the lock, per spec invariant)
// and delivers the reply. The reply send is best-effort: if nobody is
// listening (the caller already gave up), it is simply dropped — the
// worker still completes its bookkeeping and returns to the pool.
func (w *Worker) finish(env jobEnvelope, reply jobReply) {
	w.generation.Advance()
	select {
	case env.reply <- reply:
	default:
	}
	close(env.reply)
}

// watchHeap polls the isolate's heap usage against maxMemory and calls
// TerminateExecution if it is exceeded. It returns a stop function that must
// be called once the job completes — stop blocks until the watcher goroutine
// has exited, so the caller can rely on no further TerminateExecution calls
// once it returns — and an atomic flag the caller reads afterward to learn
// whether this watcher is what terminated the job (spec §4.1 step 5d, §5
// "Heap enforcement"; the flag mirrors the teacher's timedOut atomic.Bool
// pattern in internal/v8engine/execute.go, set by the same goroutine that
// calls TerminateExecution, since v8go has no isolate-side "is terminating"
// query this package can ground a call on). This models the near-heap-limit
// callback the spec describes as a lightweight poll rather than a native V8
// callback registration — see DESIGN.md for why.
func (w *Worker) watchHeap() (stop func(), fired *atomic.Bool) {
	fired = &atomic.Bool{}
	if w.maxMemory == 0 {
		return func() {}, fired
	}
	stopCh := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				stats := w.iso.GetHeapStatistics()
				if stats.UsedHeapSize >= w.maxMemory {
					fired.Store(true)
					w.iso.TerminateExecution()
					return
				}
			}
		}
	}()
	return func() {
		close(stopCh)
		<-exited
	}, fired
}

// submit hands env off to the worker's capacity-1 job channel, blocking
// until there is room rather than failing fast (spec: "a bounded channel of
// capacity 1 — backpressure, not buffering ... preserve capacity 1", §5,
// §9). It respects ctx so a caller that gives up stops waiting, but the
// blocking send itself is what guarantees the job is actually handed off to
// the worker's receive loop before Pool.Run's guard can return that worker
// to the idle stack (mirrors original_source/rusty-workers-runtime's
// blocking job_tx.send().await taken while the thread guard is held).
func (w *Worker) submit(ctx context.Context, env jobEnvelope) error {
	select {
	case w.jobs <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close closes the job channel, causing serve to drain and exit (spec §4.6
// Worker state machine: Ready -> Draining -> Exited).
func (w *Worker) close() {
	close(w.jobs)
	<-w.done
	w.iso.Dispose()
}

//go:build qjsengine

// Package qjsengine is the alternate Engine Worker / Isolate Pool backend,
// selected by the qjsengine build tag in place of internal/engine's default
// tommie/v8go backend (spec §9: "a second backend is a plausible future
// direction"). Grounded in cryguy-worker's internal/quickjs/pool.go —
// modernc.org/quickjs in place of v8go. Jobs run without a per-job timer:
// nothing in this package calls VM.Interrupt.
package qjsengine

import (
	"fmt"

	"github.com/cryguy/isolatecore/internal/core"
	"modernc.org/quickjs"
)

// JobContext is the context scope a Job is handed (spec §3: "must not
// escape references to that scope").
type JobContext struct {
	vm *quickjs.VM
}

// VM returns the QuickJS VM the job is running in.
func (jc *JobContext) VM() *quickjs.VM { return jc.vm }

// Job is an opaque callable run inside a worker's VM (spec §3).
type Job func(jc *JobContext) (any, error)

type jobEnvelope struct {
	job   Job
	reply chan jobReply
}

type jobReply struct {
	val        any
	err        error
	terminated bool
}

// Worker owns one QuickJS VM and serves jobs off a capacity-1 channel
// (spec §3, §4.1), mirroring internal/engine.Worker's job contract. It
// differs in the engine handle, in reusing one VM across jobs (see runOne),
// in having no heap poll (see watchHeap), and in submit taking no context.
type Worker struct {
	vm         *quickjs.VM
	generation *core.GenerationBox
	maxMemory  uint64

	jobs chan jobEnvelope
	done chan struct{}

	id int
}

// newWorker creates one QuickJS-backed Engine Worker (spec §4.1). QuickJS
// has no separate "compile librt once, install per context" step the way
// v8go's UnboundScript does — modernc.org/quickjs VMs are single-context by
// construction, so librt-equivalent globals are simply evaluated once at
// worker creation (mirrors cryguy-worker's newQJSWorker running its setup
// functions once, not per job).
func newWorker(id int, cfg core.IsolateConfig) (*Worker, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("qjsengine: creating VM for worker %d: %w", id, err)
	}
	if cfg.MaxMemoryBytes > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MaxMemoryBytes))
	}

	if err := installLibrt(vm); err != nil {
		vm.Close()
		return nil, fmt.Errorf("qjsengine: installing librt for worker %d: %w", id, err)
	}

	w := &Worker{
		vm:         vm,
		generation: core.NewGenerationBox(),
		maxMemory:  cfg.MaxMemoryBytes,
		jobs:       make(chan jobEnvelope, 1),
		done:       make(chan struct{}),
		id:         id,
	}
	go w.serve()
	return w, nil
}

// Generation returns this worker's generation box.
func (w *Worker) Generation() *core.GenerationBox { return w.generation }

// ID returns the worker's opaque identifier.
func (w *Worker) ID() int { return w.id }

func (w *Worker) serve() {
	defer close(w.done)
	for env := range w.jobs {
		w.runOne(env)
	}
}

// runOne executes one job on the worker's VM. No timer bounds the job and
// the VM is never interrupted; the reply is marked terminated only when the
// job panics. There is no per-job fresh-context allocation, since
// modernc.org/quickjs VMs don't expose one; per-job state is reset via
// globalThisCleanupJS-equivalent cleanup instead (spec §4.1 step 5's
// "instance-local cleanup").
func (w *Worker) runOne(env jobEnvelope) {
	stopHeapWatch := w.watchHeap()
	defer stopHeapWatch()

	terminated := false
	val, err := func() (v any, e error) {
		defer func() {
			if r := recover(); r != nil {
				terminated = true
				e = fmt.Errorf("%w: panic recovered: %v", core.ErrJobTerminated, r)
			}
		}()
		jc := &JobContext{vm: w.vm}
		return env.job(jc)
	}()

	if err := w.cleanup(); err != nil && !terminated {
		err = fmt.Errorf("qjsengine: post-job cleanup: %w", err)
	}

	w.finish(env, jobReply{val: val, err: err, terminated: terminated})
}

func (w *Worker) cleanup() error {
	_, err := w.vm.EvalValue(globalThisCleanupJS, quickjs.EvalGlobal)
	return err
}

func (w *Worker) finish(env jobEnvelope, reply jobReply) {
	w.generation.Advance()
	select {
	case env.reply <- reply:
	default:
	}
	close(env.reply)
}

// watchHeap does not read heap usage: when a cap is configured it starts a
// goroutine that only waits for stop. The cap itself is the QuickJS memory
// limit set at VM creation (vm.SetMemoryLimit); a job that exceeds it gets
// whatever error the VM returns, and its reply is not marked terminated.
func (w *Worker) watchHeap() (stop func()) {
	if w.maxMemory == 0 {
		return func() {}
	}
	stopCh := make(chan struct{})
	go func() {
		<-stopCh
	}()
	return func() { close(stopCh) }
}

// submit enqueues env on the worker's capacity-1 job channel, blocking until
// there is room, as internal/engine's submit does. Unlike that submit it
// takes no context: a caller waiting here is not released by cancellation,
// and waits until the serve loop has taken the job queued ahead of it.
func (w *Worker) submit(env jobEnvelope) error {
	w.jobs <- env
	return nil
}

func (w *Worker) close() {
	close(w.jobs)
	<-w.done
	w.vm.Close()
}

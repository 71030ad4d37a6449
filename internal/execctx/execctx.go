//go:build !qjsengine

// Package execctx implements the spec's Execution Context (§3, §4.3): one
// long-lived, mutex-guarded V8 isolate per app, with a swappable "current
// context" handle, the native invoke bridge, and the app's named service
// clients. Grounded directly in original_source/src/ctx.rs's BlueboatCtx,
// translated from a thread-per-app Rust actor into a goroutine-safe Go type
// guarded by an explicit mutex rather than actor-message serialization.
package execctx

import (
	"fmt"
	"sync"
	"time"

	"github.com/cryguy/isolatecore/internal/core"
	"github.com/cryguy/isolatecore/internal/corelog"
	"github.com/cryguy/isolatecore/internal/engine"
	"github.com/cryguy/isolatecore/internal/watchdog"
	v8 "github.com/tommie/v8go"
)

// ExecutionContext is one app's owned engine instance (spec §3): a single
// isolate, guarded by a mutex so only one goroutine ever enters the engine
// at a time, with a swappable current v8.Context and the app's named
// service clients (SQL pools, push clients, HTTP client — see clients.go).
type ExecutionContext struct {
	key      core.PackageKey
	pkg      core.Package
	metadata *core.Metadata
	registry core.APIRegistry
	log      *corelog.Logger

	iso      *v8.Isolate
	librt    *v8.UnboundScript
	template *v8.ObjectTemplate

	generation *core.GenerationBox
	symbols    *symbolRegistry

	// mu serializes RunJob: "the owned engine instance is guarded by a
	// mutex (only one thread enters the engine at a time)" (spec §3).
	mu        sync.Mutex
	requestID string

	// ctxMu guards currentCtx only against concurrent grab/reset calls made
	// outside of a running job (e.g. an external reset trigger racing a
	// job dispatch); within a running job, currentCtxUnsafe is read without
	// it precisely because mu is already held by that job's caller.
	ctxMu      sync.Mutex
	currentCtx *v8.Context

	lpTx chan<- core.LowPriorityMsg
	rch  *core.ReliableChannelSeed

	sql  map[string]*sqlClient
	push map[string]*pushClient

	watchdogRT *watchdog.Runtime
}

// New constructs an uninitialized ExecutionContext from one process's
// InitData (spec §6). Call Init to run the build sequence.
func New(data *core.InitData, registry core.APIRegistry, wd *watchdog.Runtime) *ExecutionContext {
	return &ExecutionContext{
		key:        data.Key,
		pkg:        data.Package,
		metadata:   data.Metadata,
		registry:   registry,
		log:        corelog.New(data.ProcessName()),
		generation: core.NewGenerationBox(),
		symbols:    newSymbolRegistry(),
		lpTx:       data.LPTx,
		rch:        data.RCH,
		watchdogRT: wd,
	}
}

// Init runs the Execution Context init sequence (spec §4.3): allocate the
// isolate, build the context template and compile librt, then build the
// first v8 Context — all bounded by the configured init timeout (default 3s,
// spec §6, §9). If the timeout fires first, the watchdog logs and aborts the
// process (mirroring original_source's process::exit(1) on init timeout,
// since an app that cannot even initialize within budget is not a condition
// the host can usefully recover from in place).
func (ec *ExecutionContext) Init(cfg core.IsolateConfig) error {
	timedOut := make(chan struct{})
	task := ec.watchdogRT.Schedule(time.Duration(cfg.InitTimeout.Effective())*time.Second, func() {
		close(timedOut)
		ec.log.Fatalf("%s: app %s exceeded init timeout of %ds", core.ErrInitTimeout, ec.key.String(), cfg.InitTimeout.Effective())
	})

	done := make(chan error, 1)
	go func() {
		done <- ec.initSync(cfg)
	}()

	select {
	case err := <-done:
		task.Cancel()
		return err
	case <-timedOut:
		// ec.log.Fatalf above already aborted the process; this branch only
		// exists so Init itself returns instead of blocking forever in
		// contexts (tests) that stub out corelog's os.Exit.
		return fmt.Errorf("%w: app %s", core.ErrInitTimeout, ec.key.String())
	}
}

func (ec *ExecutionContext) initSync(cfg core.IsolateConfig) error {
	var iso *v8.Isolate
	if cfg.MaxMemoryBytes > 0 {
		iso = v8.NewIsolate(v8.WithResourceConstraints(cfg.MaxMemoryBytes/2, cfg.MaxMemoryBytes))
	} else {
		iso = v8.NewIsolate()
	}
	ec.iso = iso

	tmpl, err := ec.buildContextTemplate()
	if err != nil {
		iso.Dispose()
		return err
	}
	ec.template = tmpl

	librt, err := engine.CompileLibrt(iso)
	if err != nil {
		iso.Dispose()
		return fmt.Errorf("execctx: compiling librt for app %s: %w", ec.key.String(), err)
	}
	ec.librt = librt

	if err := ec.initClients(); err != nil {
		iso.Dispose()
		return err
	}

	ctx, err := ec.buildV8Context()
	if err != nil {
		iso.Dispose()
		return err
	}
	if err := engine.InstallLibrt(ctx, ec.librt); err != nil {
		ctx.Close()
		iso.Dispose()
		return fmt.Errorf("execctx: installing librt for app %s: %w", ec.key.String(), err)
	}

	ec.ctxMu.Lock()
	ec.currentCtx = ctx
	ec.ctxMu.Unlock()
	return nil
}

// grabV8Context returns the current context under ctxMu. Mirrors
// original_source's grab_v8_context — used by callers that need the handle
// outside of a running job (e.g. to schedule work, not to execute it).
func (ec *ExecutionContext) grabV8Context() *v8.Context {
	ec.ctxMu.Lock()
	defer ec.ctxMu.Unlock()
	return ec.currentCtx
}

// resetV8Context discards the current context and builds a fresh one from
// the same template and librt (spec §4.3 "context reset", scenario S6). The
// isolate-local symbol registry is cleared; the isolate itself, librt, and
// generation counter are untouched — only context-scoped state is reset.
func (ec *ExecutionContext) resetV8Context() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ctx, err := ec.buildV8Context()
	if err != nil {
		return err
	}
	if err := engine.InstallLibrt(ctx, ec.librt); err != nil {
		ctx.Close()
		return fmt.Errorf("execctx: installing librt on reset for app %s: %w", ec.key.String(), err)
	}

	ec.ctxMu.Lock()
	old := ec.currentCtx
	ec.currentCtx = ctx
	ec.ctxMu.Unlock()

	if old != nil {
		old.Close()
	}
	ec.symbols.Clear()
	return nil
}

// RunJob serially executes fn against the current context, stamping
// requestID as the in-flight request for the duration so the native invoke
// bridge can tag thrown errors and dispatched calls with it (spec §4.4,
// §7). Exactly one RunJob runs at a time per ExecutionContext (spec §3).
func (ec *ExecutionContext) RunJob(requestID string, fn func(ctx *v8.Context) (any, error)) (any, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.requestID = requestID
	defer func() { ec.requestID = "" }()
	defer ec.generation.Advance()

	return fn(ec.currentCtxUnsafe())
}

// currentRequestID returns the in-flight request id. Only meaningful while
// called from within RunJob's fn (i.e. from the native invoke bridge running
// on the same goroutine that holds mu); there is no separate lock because
// the caller's mu hold already fences this read.
func (ec *ExecutionContext) currentRequestID() string {
	return ec.requestID
}

// currentCtxUnsafe returns the context pointer without taking ctxMu. Valid
// only while mu is held (i.e. during RunJob) — named Unsafe to flag that
// constraint to future callers, mirroring original_source's
// grab_v8_context_unsafe used from native_invoke_entry_impl.
func (ec *ExecutionContext) currentCtxUnsafe() *v8.Context {
	return ec.currentCtx
}

// Generation exposes the context's generation box (test/observability use,
// spec §8 invariant 3).
func (ec *ExecutionContext) Generation() *core.GenerationBox { return ec.generation }

// Key returns the app's package key.
func (ec *ExecutionContext) Key() core.PackageKey { return ec.key }

// Close tears down the isolate and every owned client. Safe to call once
// after Init has returned (successfully or not).
func (ec *ExecutionContext) Close() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.closeClients()

	ec.ctxMu.Lock()
	if ec.currentCtx != nil {
		ec.currentCtx.Close()
		ec.currentCtx = nil
	}
	ec.ctxMu.Unlock()

	if ec.iso != nil {
		ec.iso.Dispose()
	}
}

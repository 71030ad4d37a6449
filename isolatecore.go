//go:build !qjsengine

// Package isolatecore is the root facade tying the generic Isolate Pool
// (internal/engine) together with per-app Execution Contexts
// (internal/execctx), mirroring cryguy-worker's root worker.go/engine.go:
// a thin struct delegating to the backend packages rather than reimplementing
// their logic at this layer.
package isolatecore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cryguy/isolatecore/internal/core"
	"github.com/cryguy/isolatecore/internal/engine"
	"github.com/cryguy/isolatecore/internal/execctx"
	"github.com/cryguy/isolatecore/internal/watchdog"
)

// Runtime is the top-level handle a host process holds: one shared Isolate
// Pool for pooled/ephemeral work (spec §3 "generic pool"), plus a registry
// of per-app Execution Contexts keyed by PackageKey (spec §3 "per-app
// context"). Both share the same process-wide watchdog.
type Runtime struct {
	pool       *engine.Pool
	registry   core.APIRegistry
	watchdogRT *watchdog.Runtime

	mu   sync.Mutex
	apps map[string]*execctx.ExecutionContext
}

// New creates a Runtime with a pool of poolSize Engine Workers and starts
// the shared watchdog (spec §4.2, §4.5). registry is consulted by every
// Execution Context's native invoke bridge (spec §4.4); a process typically
// builds one core.MapRegistry up front and shares it across every app.
func New(poolSize int, cfg core.IsolateConfig, registry core.APIRegistry) (*Runtime, error) {
	pool, err := engine.New(poolSize, cfg)
	if err != nil {
		return nil, fmt.Errorf("isolatecore: creating pool: %w", err)
	}
	return &Runtime{
		pool:       pool,
		registry:   registry,
		watchdogRT: watchdog.New(),
		apps:       make(map[string]*execctx.ExecutionContext),
	}, nil
}

// RunPooled dispatches job to the shared Isolate Pool (spec §4.2).
func (r *Runtime) RunPooled(ctx context.Context, job engine.Job) (any, error) {
	return r.pool.Run(ctx, job)
}

// PoolSize returns the configured pool size.
func (r *Runtime) PoolSize() int { return r.pool.Size() }

// StartApp builds and initializes one app's Execution Context (spec §4.3)
// and registers it under data.Key. Starting an app already registered under
// the same key replaces it; the caller is responsible for draining the old
// one first if that matters to them.
func (r *Runtime) StartApp(data *core.InitData, cfg core.IsolateConfig) (*execctx.ExecutionContext, error) {
	ec := execctx.New(data, r.registry, r.watchdogRT)
	if err := ec.Init(cfg); err != nil {
		return nil, fmt.Errorf("isolatecore: starting app %s: %w", data.Key.String(), err)
	}

	r.mu.Lock()
	r.apps[data.Key.String()] = ec
	r.mu.Unlock()
	return ec, nil
}

// App returns the running Execution Context registered under key, if any.
func (r *Runtime) App(key core.PackageKey) (*execctx.ExecutionContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec, ok := r.apps[key.String()]
	return ec, ok
}

// StopApp closes and unregisters the Execution Context for key, if running.
func (r *Runtime) StopApp(key core.PackageKey) {
	r.mu.Lock()
	ec, ok := r.apps[key.String()]
	delete(r.apps, key.String())
	r.mu.Unlock()

	if ok {
		ec.Close()
	}
}

// Shutdown disposes the pool, every running app's Execution Context, and the
// shared watchdog. Safe to call once.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	apps := r.apps
	r.apps = make(map[string]*execctx.ExecutionContext)
	r.mu.Unlock()

	for _, ec := range apps {
		ec.Close()
	}
	r.pool.Dispose()
	r.watchdogRT.Close()
}

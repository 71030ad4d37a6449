// Package core holds the types and interfaces shared between the engine
// backends (internal/engine, internal/qjsengine) and the per-app execution
// context (internal/execctx). Nothing in this package touches a concrete
// JS engine.
package core

import "sync"

// Generation is a per-worker monotonic counter advanced by exactly 1 after
// every completed-or-terminated job. External observers latch a Generation
// before submitting a job to unambiguously decide whether that job has
// completed.
type Generation uint64

// GenerationBox is a value-typed box around a Generation, shared between an
// Engine Worker and external observers behind a mutex. The bump must happen
// while the lock is held; see GenerationBox.Advance.
type GenerationBox struct {
	mu    sync.Mutex
	value Generation
}

// NewGenerationBox returns a box starting at generation 0.
func NewGenerationBox() *GenerationBox {
	return &GenerationBox{}
}

// Load returns the current generation.
func (b *GenerationBox) Load() Generation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Advance increments the generation by exactly 1 and returns the new value.
// Callers must invoke this while still holding any lock that fences
// visibility of the job's side effects (the engine worker does so
// immediately after a job returns or is terminated).
func (b *GenerationBox) Advance() Generation {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value++
	return b.value
}

// IsolateConfig holds immutable per-pool settings.
type IsolateConfig struct {
	// MaxMemoryBytes is the hard heap cap. The V8 backend polls heap usage
	// and terminates the offending invocation once it reaches the cap; the
	// QuickJS backend sets it as the VM memory limit. Zero means no cap.
	MaxMemoryBytes uint64

	// InitTimeout bounds how long Execution Context initialization
	// (execctx.Init) may take before the watchdog aborts the process. Engine
	// Worker creation in the pools does not read it.
	// Preserved default: 3 seconds (see spec §6, §9 Open Questions).
	InitTimeout InitTimeoutConfig
}

// InitTimeoutConfig is split out so callers can override the hardcoded
// 3-second default without losing it as the zero-value behavior.
type InitTimeoutConfig struct {
	// Seconds is the wall-clock budget for one Execution Context's init,
	// from init start to context-build completion. 0 means "use the
	// preserved default of 3 seconds" — see DefaultInitTimeoutSeconds.
	Seconds int
}

// DefaultInitTimeoutSeconds is the spec's hardcoded default (§6, §9).
const DefaultInitTimeoutSeconds = 3

// Effective returns the configured timeout, substituting the preserved
// default when unset.
func (c InitTimeoutConfig) Effective() int {
	if c.Seconds <= 0 {
		return DefaultInitTimeoutSeconds
	}
	return c.Seconds
}

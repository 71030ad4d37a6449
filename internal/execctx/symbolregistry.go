//go:build !qjsengine

package execctx

import "sync"

// symbolRegistry is the per-isolate engine-local slot original_source keeps
// as `isolate.set_slot(SymbolRegistry::new())` — a place for JS-side
// `Symbol.for`-style interned values to live outside any one context.
// reset_v8_context clears only this registry (spec §4.3, §9 Open Questions:
// "conservative default: mirror whatever slots the per-job cleanup
// clears" — per-job cleanup in the pool case clears no symbol state at all,
// since ephemeral contexts never populate one, so a plain Clear suffices
// here too).
type symbolRegistry struct {
	mu      sync.Mutex
	symbols map[string]any
}

func newSymbolRegistry() *symbolRegistry {
	return &symbolRegistry{symbols: make(map[string]any)}
}

func (r *symbolRegistry) Get(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.symbols[name]
	return v, ok
}

func (r *symbolRegistry) Set(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[name] = v
}

func (r *symbolRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = make(map[string]any)
}

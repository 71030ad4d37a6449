//go:build !qjsengine

package engine

import v8 "github.com/tommie/v8go"

// librtSource is the runtime library bootstrap blob (spec GLOSSARY: "a
// precompiled JavaScript bootstrap blob installed into every context before
// user code runs"). It is deliberately tiny here — the core's job is only
// to prove the compile-once/install-per-context protocol works, not to ship
// a web-platform polyfill surface (that lives in the API registry, an
// external collaborator per spec §1).
const librtSource = `
(function() {
	globalThis.global = globalThis;
})();
`

// CompileLibrt compiles librt once per isolate into an unbound (context-
// independent) script, as required by spec §3 ("librt is compiled exactly
// once per worker") and §4.1 step 1. The unbound script is cloned into every
// fresh context the isolate touches afterward via InstallLibrt.
func CompileLibrt(iso *v8.Isolate) (*v8.UnboundScript, error) {
	return iso.CompileUnboundScript(librtSource, "librt.js", v8.CompileOptions{})
}

// InstallLibrt binds the cached unbound librt script to ctx and runs it,
// installing the same global-object shape into every fresh context it
// touches (spec §3 invariant, §4.1 step 3).
func InstallLibrt(ctx *v8.Context, unbound *v8.UnboundScript) error {
	_, err := unbound.Run(ctx)
	return err
}

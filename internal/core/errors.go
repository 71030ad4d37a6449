package core

import "errors"

// Error kinds named in spec §7. Each is a sentinel wrapped with fmt.Errorf's
// %w at the call site, matching the teacher's error-wrapping idiom
// throughout cryguy-worker (no custom error-kind hierarchy, just wrapped
// sentinels callers can errors.Is against).
var (
	// ErrPoolCorruption is fatal: a permit was granted but no worker was
	// available on the idle stack, or a worker's reply channel closed
	// without delivering a value. Both indicate the pool's invariants have been
	// violated elsewhere; the process should be restarted by its
	// supervisor, not recovered in place.
	ErrPoolCorruption = errors.New("isolatecore: pool corruption")

	// ErrPackageInit wraps a string-sourced message from context build:
	// either a thrown exception's message (bootstrap function) or an
	// evaluated module's stack (index module evaluation error).
	ErrPackageInit = errors.New("isolatecore: package init failed")

	// ErrInitTimeout fires when Execution Context init does not complete
	// within the configured (default 3s) wall-clock budget. The watchdog
	// that detects this aborts the process; this sentinel is what gets
	// logged before that abort.
	ErrInitTimeout = errors.New("isolatecore: initialization timed out")

	// ErrJobTerminated means the engine's termination signal fired
	// mid-execution. The worker replies with the job marked terminated and
	// any value the job returned is discarded; Pool.Run returns this
	// sentinel instead of a value.
	ErrJobTerminated = errors.New("isolatecore: job terminated")

	// ErrNativeInvoke names the native-invoke error kind; never fatal to the
	// host process. The bridge (internal/execctx/bridge.go) reports these
	// failures to JS by throwing a message string and does not wrap this
	// sentinel.
	ErrNativeInvoke = errors.New("isolatecore: native invoke error")

	// ErrHeapLimitExceeded names the heap-cap error kind. It is a plain
	// sentinel that does not wrap ErrJobTerminated, and no backend returns
	// it: a job killed by the V8 worker's heap watch is reported to the
	// caller as ErrJobTerminated.
	ErrHeapLimitExceeded = errors.New("isolatecore: heap limit exceeded")
)

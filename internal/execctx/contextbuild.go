//go:build !qjsengine

package execctx

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cryguy/isolatecore/internal/core"
	"github.com/cryguy/isolatecore/internal/engine"
	v8 "github.com/tommie/v8go"
)

// jslandVersion is exposed on every context as __blueboat_version (spec §6).
const jslandVersion = "0.1.0"

// bootstrapGlobal is the optional user-defined function invoked once during
// context build (spec §4.3.1, §6).
const bootstrapGlobal = "__blueboat_app_bootstrap"

// analyticsURLEnvVar is the host environment variable that, when set,
// becomes __blueboat_env_analytics_url on the global (spec §6).
const analyticsURLEnvVar = "SMRAPP_BLUEBOAT_ANALYTICS_URL"

// buildV8Context builds a fresh context from ec's template, installs librt
// before any app code runs, loads the package's resource table and
// bootstrap, and evaluates the index module (spec §4.3.1). Build errors from
// the package steps propagate as a single error kind (core.ErrPackageInit)
// carrying a human-readable message; the caller (Init, or the reset path)
// decides what to do with it.
func (ec *ExecutionContext) buildV8Context() (*v8.Context, error) {
	ctx := v8.NewContext(ec.iso, ec.template)

	if err := engine.InstallLibrt(ctx, ec.librt); err != nil {
		ctx.Close()
		return nil, fmt.Errorf("execctx: installing librt for app %s: %w", ec.key.String(), err)
	}

	if err := ec.populateGlobals(ctx); err != nil {
		ctx.Close()
		return nil, err
	}

	if err := ec.runBootstrap(ctx); err != nil {
		ctx.Close()
		return nil, err
	}

	if err := ec.evaluateIndexModule(ctx); err != nil {
		ctx.Close()
		return nil, err
	}

	return ctx, nil
}

func (ec *ExecutionContext) populateGlobals(ctx *v8.Context) error {
	global := ctx.Global()

	packVal, err := goValueToJS(ec.iso, ctx, ec.pkg.Pack())
	if err != nil {
		return fmt.Errorf("%w: bridging Package resource table: %s", core.ErrPackageInit, err)
	}
	if err := global.Set("Package", packVal); err != nil {
		return fmt.Errorf("%w: setting Package global: %s", core.ErrPackageInit, err)
	}

	versionVal, _ := v8.NewValue(ec.iso, jslandVersion)
	if err := global.Set("__blueboat_version", versionVal); err != nil {
		return fmt.Errorf("%w: setting __blueboat_version: %s", core.ErrPackageInit, err)
	}

	if analyticsURL, ok := ec.hostEnv(analyticsURLEnvVar); ok {
		v, _ := v8.NewValue(ec.iso, analyticsURL)
		if err := global.Set("__blueboat_env_analytics_url", v); err != nil {
			return fmt.Errorf("%w: setting __blueboat_env_analytics_url: %s", core.ErrPackageInit, err)
		}
	}

	return nil
}

// runBootstrap serializes the bootstrap descriptor and, if the app defined
// __blueboat_app_bootstrap, calls it (spec §4.3.1, §6). An exception raised
// by that function aborts the build with a PackageInit error carrying the
// exception message.
func (ec *ExecutionContext) runBootstrap(ctx *v8.Context) error {
	descriptor := ec.metadata.Bootstrap()
	data, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("%w: serializing bootstrap descriptor: %s", core.ErrPackageInit, err)
	}

	check, err := ctx.RunScript(fmt.Sprintf("typeof globalThis[%q] === 'function'", bootstrapGlobal), "bootstrap_check.js")
	if err != nil || !check.Boolean() {
		return nil
	}

	script := fmt.Sprintf("globalThis[%q](%s)", bootstrapGlobal, string(data))
	if _, err := ctx.RunScript(script, "bootstrap.js"); err != nil {
		return fmt.Errorf("%w: %s", core.ErrPackageInit, jsErrorMessage(err))
	}
	return nil
}

// evaluateIndexModule resolves and evaluates the package's index module
// (empty specifier means "the entry"). If the module errors, the best-
// effort stringified stack is extracted; where no stack is available the
// message falls back as jsErrorMessage describes (spec §4.3.1).
func (ec *ExecutionContext) evaluateIndexModule(ctx *v8.Context) error {
	source, err := ec.pkg.IndexSource("")
	if err != nil {
		return fmt.Errorf("%w: loading index module: %s", core.ErrPackageInit, err)
	}

	if _, err := ctx.RunScript(source, "index.js"); err != nil {
		return fmt.Errorf("%w: %s", core.ErrPackageInit, jsErrorMessage(err))
	}
	return nil
}

// jsErrorMessage extracts a best-effort stringification of a V8 error,
// preferring the stack trace a *v8.JSError carries, then its Message when the
// stack is empty, and the plain err.Error() for any other error type.
func jsErrorMessage(err error) string {
	if jsErr, ok := err.(*v8.JSError); ok {
		if jsErr.StackTrace != "" {
			return jsErr.StackTrace
		}
		return jsErr.Message
	}
	return err.Error()
}

// hostEnvLookup is overridable in tests; defaults to os.LookupEnv.
var hostEnvLookup = defaultHostEnvLookup

func defaultHostEnvLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

func (ec *ExecutionContext) hostEnv(name string) (string, bool) {
	return hostEnvLookup(name)
}

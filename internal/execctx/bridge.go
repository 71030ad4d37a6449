//go:build !qjsengine

package execctx

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/isolatecore/internal/core"
	v8 "github.com/tommie/v8go"
)

// NIEntryKey is the reserved key the native invoke bridge is installed
// under on every context's global object (spec §4.4, §6). It predates
// user code because it is installed by template, not by a later script —
// user code cannot shadow it before the bridge is consulted.
const NIEntryKey = "__blueboat_host_invoke"

// buildContextTemplate creates the object template whose sole injected
// property is the native-invoke entry (spec §4.3 step 4). One template is
// built once per Execution Context and reused by every build_v8_context
// call (including resets).
func (ec *ExecutionContext) buildContextTemplate() (*v8.ObjectTemplate, error) {
	tmpl := v8.NewObjectTemplate(ec.iso)
	fn := v8.NewFunctionTemplate(ec.iso, ec.nativeInvokeEntry)
	if err := tmpl.Set(NIEntryKey, fn); err != nil {
		return nil, fmt.Errorf("execctx: binding %s on context template: %w", NIEntryKey, err)
	}
	return tmpl, nil
}

// nativeInvokeEntry is __blueboat_host_invoke(apiName, ...args) -> any
// (spec §4.4). It never panics on user input: any bug in a handler is a
// fatal host bug, not something the bridge itself should crash on.
func (ec *ExecutionContext) nativeInvokeEntry(info *v8.FunctionCallbackInfo) *v8.Value {
	iso := ec.iso
	args := info.Args()

	reqID := ec.currentRequestID()

	if len(args) < 1 || !args[0].IsString() {
		ec.throwf(iso, "native invoke by app %s request %s: missing api name argument", ec.key.String(), reqID)
		return nil
	}
	apiName := args[0].String()

	handler, ok := ec.registry.Lookup(apiName)
	if !ok {
		ec.throwf(iso, "app %s request %s is invoking an unknown native api: %s", ec.key.String(), reqID, apiName)
		return nil
	}

	callArgs := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		callArgs = append(callArgs, jsValueToGo(a))
	}

	result, err := handler(&core.Invocation{AppKey: ec.key.String(), RequestID: reqID, Args: callArgs})
	if err != nil {
		ec.throwf(iso, "native invoke error from app %s request %s: %s", ec.key.String(), reqID, err.Error())
		return nil
	}

	v, convErr := goValueToJS(iso, ec.currentCtxUnsafe(), result)
	if convErr != nil {
		ec.throwf(iso, "native invoke by app %s request %s: converting result of %s: %s", ec.key.String(), reqID, apiName, convErr.Error())
		return nil
	}
	return v
}

// throwf throws the formatted message, which carries the standardized
// context prefix identifying app key and request id. The thrown value is a
// plain JS string, not an Error object, so it has no stack or name.
func (ec *ExecutionContext) throwf(iso *v8.Isolate, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	jsMsg, _ := v8.NewValue(iso, msg)
	iso.ThrowException(jsMsg)
}

// jsValueToGo converts a JS argument to a plain Go value for the handler.
// Complex values are left as *v8.Value for handlers that want direct
// engine access; this mirrors the registry boundary staying thin — it is
// not the core's job to fully reify the V8 value graph.
func jsValueToGo(v *v8.Value) any {
	switch {
	case v.IsString():
		return v.String()
	case v.IsBoolean():
		return v.Boolean()
	case v.IsNumber():
		return v.Number()
	case v.IsNull() || v.IsUndefined():
		return nil
	default:
		return v
	}
}

// goValueToJS converts a handler's return value back to a *v8.Value. Scalars
// bridge directly; anything else round-trips through JSON.parse, since the
// native invoke surface is a plain data boundary (spec §1: the registry and
// its handlers are external collaborators, not engine-aware code) rather
// than something that needs a full reflection-based marshaler the way
// cryguy-worker's RegisterFunc bridge does for its much larger Web API
// surface (internal/v8engine/runtime.go).
func goValueToJS(iso *v8.Isolate, ctx *v8.Context, v any) (*v8.Value, error) {
	if v == nil {
		return v8.Undefined(iso), nil
	}
	switch x := v.(type) {
	case *v8.Value:
		return x, nil
	case string:
		return v8.NewValue(iso, x)
	case bool:
		return v8.NewValue(iso, x)
	case int:
		return v8.NewValue(iso, int32(x))
	case int32:
		return v8.NewValue(iso, x)
	case float64:
		return v8.NewValue(iso, x)
	default:
		return jsonValueToJS(iso, ctx, v)
	}
}

// jsonValueToJS serializes v to JSON and parses it back inside ctx, for
// values with no direct *v8.Value scalar mapping (maps, slices, structs).
func jsonValueToJS(iso *v8.Isolate, ctx *v8.Context, v any) (*v8.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %T for bridging to JS: %w", v, err)
	}
	jsonVal, err := v8.NewValue(iso, string(data))
	if err != nil {
		return nil, err
	}
	global := ctx.Global()
	if err := global.Set("__blueboat_tmp_json__", jsonVal); err != nil {
		return nil, err
	}
	// __blueboat_tmp_json__ is left behind; it is overwritten by the next
	// bridged value and cleared entirely on the next context reset, so it
	// is not worth a delete call this package has no grounded API for.
	return ctx.RunScript("JSON.parse(globalThis.__blueboat_tmp_json__)", "bridge_json.js")
}

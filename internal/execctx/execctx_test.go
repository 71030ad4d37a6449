//go:build !qjsengine

package execctx

import (
	"errors"
	"strings"
	"testing"

	"github.com/cryguy/isolatecore/internal/core"
	"github.com/cryguy/isolatecore/internal/watchdog"
	v8 "github.com/tommie/v8go"
)

type fakePackage struct {
	pack  any
	index string
}

func (p *fakePackage) Pack() any { return p.pack }
func (p *fakePackage) IndexSource(specifier string) (string, error) {
	if specifier != "" {
		return "", errors.New("no such specifier")
	}
	return p.index, nil
}

func newTestContext(t *testing.T, index string, registry core.APIRegistry) (*ExecutionContext, *watchdog.Runtime) {
	t.Helper()
	wd := watchdog.New()
	data := &core.InitData{
		Key:      core.PackageKey{AppID: "testapp"},
		Package:  &fakePackage{pack: map[string]string{"greeting": "hi"}, index: index},
		Metadata: &core.Metadata{},
	}
	ec := New(data, registry, wd)
	if err := ec.Init(core.IsolateConfig{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return ec, wd
}

func TestInitExposesPackageGlobal(t *testing.T) {
	ec, wd := newTestContext(t, `globalThis.__seen = Package.greeting;`, core.MapRegistry{})
	defer wd.Close()
	defer ec.Close()

	v, err := ec.grabV8Context().RunScript("globalThis.__seen", "read.js")
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if got := v.String(); got != "hi" {
		t.Fatalf("Package.greeting observed as %q, want %q", got, "hi")
	}
}

func TestNativeInvokeDispatchesToRegistry(t *testing.T) {
	var gotAppKey, gotReqID string
	var gotArg string
	registry := core.MapRegistry{
		"echo": func(inv *core.Invocation) (any, error) {
			gotAppKey = inv.AppKey
			gotReqID = inv.RequestID
			if len(inv.Args) > 0 {
				gotArg, _ = inv.Args[0].(string)
			}
			return "pong", nil
		},
	}
	ec, wd := newTestContext(t, `globalThis.__result = __blueboat_host_invoke("echo", "ping");`, registry)
	defer wd.Close()
	defer ec.Close()

	result, err := ec.RunJob("req-1", func(ctx *v8.Context) (any, error) {
		return ctx.RunScript(`__blueboat_host_invoke("echo", "ping")`, "invoke.js")
	})
	if err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	v, ok := result.(*v8.Value)
	if !ok || v.String() != "pong" {
		t.Fatalf("native invoke result = %#v, want \"pong\"", result)
	}
	if gotAppKey != "testapp" {
		t.Fatalf("handler saw AppKey = %q, want %q", gotAppKey, "testapp")
	}
	if gotReqID != "req-1" {
		t.Fatalf("handler saw RequestID = %q, want %q", gotReqID, "req-1")
	}
	if gotArg != "ping" {
		t.Fatalf("handler saw arg = %q, want %q", gotArg, "ping")
	}
}

func TestNativeInvokeUnknownAPIThrows(t *testing.T) {
	ec, wd := newTestContext(t, `1;`, core.MapRegistry{})
	defer wd.Close()
	defer ec.Close()

	_, err := ec.RunJob("req-2", func(ctx *v8.Context) (any, error) {
		return ctx.RunScript(`__blueboat_host_invoke("does_not_exist")`, "bad.js")
	})
	if err == nil {
		t.Fatalf("invoking unknown native api: expected a thrown JS error, got nil")
	}
}

func TestRunJobAdvancesGeneration(t *testing.T) {
	ec, wd := newTestContext(t, `1;`, core.MapRegistry{})
	defer wd.Close()
	defer ec.Close()

	for i := 1; i <= 3; i++ {
		if _, err := ec.RunJob("req", func(ctx *v8.Context) (any, error) {
			return ctx.RunScript("1+1", "tick.js")
		}); err != nil {
			t.Fatalf("RunJob() iteration %d error = %v", i, err)
		}
	}
	if got := ec.Generation().Load(); got != 3 {
		t.Fatalf("generation after 3 jobs = %d, want 3", got)
	}
}

func TestResetV8ContextClearsState(t *testing.T) {
	ec, wd := newTestContext(t, `globalThis.__persisted = "from-index";`, core.MapRegistry{})
	defer wd.Close()
	defer ec.Close()

	if _, err := ec.grabV8Context().RunScript(`globalThis.__mutated = "job-local";`, "mutate.js"); err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}

	if err := ec.resetV8Context(); err != nil {
		t.Fatalf("resetV8Context() error = %v", err)
	}

	v, err := ec.grabV8Context().RunScript(`typeof globalThis.__mutated`, "check.js")
	if err != nil {
		t.Fatalf("RunScript() after reset error = %v", err)
	}
	if got := v.String(); got != "undefined" {
		t.Fatalf("__mutated after reset = %q, want \"undefined\"", got)
	}

	v2, err := ec.grabV8Context().RunScript("globalThis.__persisted", "reread.js")
	if err != nil {
		t.Fatalf("RunScript() rereading index global error = %v", err)
	}
	if got := v2.String(); got != "from-index" {
		t.Fatalf("__persisted after reset = %q, want %q (index module re-evaluated)", got, "from-index")
	}
}

func TestInitPackageFailurePropagatesStack(t *testing.T) {
	wd := watchdog.New()
	defer wd.Close()
	data := &core.InitData{
		Key:      core.PackageKey{AppID: "broken"},
		Package:  &fakePackage{index: `throw new Error("boom");`},
		Metadata: &core.Metadata{},
	}
	ec := New(data, core.MapRegistry{}, wd)
	err := ec.Init(core.IsolateConfig{})
	if err == nil {
		t.Fatalf("Init() with a throwing index module: expected an error, got nil")
	}
	if !errors.Is(err, core.ErrPackageInit) {
		t.Fatalf("Init() error = %v, want wrapping core.ErrPackageInit", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Init() error = %v, want it to carry the thrown exception's stack text", err)
	}
}

package core

import (
	"errors"
	"testing"
)

func TestMapRegistryLookup(t *testing.T) {
	called := false
	reg := MapRegistry{
		"echo": func(inv *Invocation) (any, error) {
			called = true
			return inv.Args, nil
		},
	}

	h, ok := reg.Lookup("echo")
	if !ok {
		t.Fatalf("Lookup(echo) not found")
	}
	if _, err := h(&Invocation{AppKey: "app", RequestID: "req", Args: []any{"x"}}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !called {
		t.Fatalf("handler was not invoked")
	}

	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("Lookup(missing) unexpectedly found")
	}
}

func TestMapRegistryHandlerError(t *testing.T) {
	sentinel := errors.New("boom")
	reg := MapRegistry{
		"fail": func(inv *Invocation) (any, error) { return nil, sentinel },
	}
	h, ok := reg.Lookup("fail")
	if !ok {
		t.Fatalf("Lookup(fail) not found")
	}
	if _, err := h(&Invocation{}); !errors.Is(err, sentinel) {
		t.Fatalf("handler error = %v, want %v", err, sentinel)
	}
}

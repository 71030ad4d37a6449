package packageloader

import "testing"

func TestLoadExportDefault(t *testing.T) {
	pkg, err := Load(Source{
		Index: `export default { fetch(req) { return req; } };`,
		Pack:  map[string]string{"KV": "namespace-1"},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	src, err := pkg.IndexSource("")
	if err != nil {
		t.Fatalf("IndexSource() error = %v", err)
	}
	if src == "" {
		t.Fatalf("IndexSource() returned empty bundle")
	}

	if got, ok := pkg.Pack().(map[string]string); !ok || got["KV"] != "namespace-1" {
		t.Fatalf("Pack() = %#v, want the original resource table", pkg.Pack())
	}
}

func TestLoadPlainScript(t *testing.T) {
	pkg, err := Load(Source{Index: `globalThis.__ran = true;`})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	src, err := pkg.IndexSource("")
	if err != nil {
		t.Fatalf("IndexSource() error = %v", err)
	}
	if src == "" {
		t.Fatalf("IndexSource() returned empty bundle for a plain script")
	}
}

func TestIndexSourceRejectsUnknownSpecifier(t *testing.T) {
	pkg, err := Load(Source{Index: `1;`})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := pkg.IndexSource("./other.js"); err == nil {
		t.Fatalf("IndexSource(./other.js) expected an error, got nil")
	}
}

func TestLoadSurfacesEsbuildErrors(t *testing.T) {
	_, err := Load(Source{Index: `export default {{{ not valid js`})
	if err == nil {
		t.Fatalf("Load() with invalid syntax: expected an error, got nil")
	}
}

package core

// PackageKey identifies one app's package bundle + deployment. Mirrors
// original_source/src/ctx.rs's PackageKey, which also doubles as the
// process's display name (see InitData.ProcessName).
type PackageKey struct {
	AppID      string
	DeployHash string
}

// String renders the key the way the embedding supervisor displays it.
func (k PackageKey) String() string {
	if k.DeployHash == "" {
		return k.AppID
	}
	return k.AppID + "@" + k.DeployHash
}

// SQLBinding names one SQL connection pool binding (spec §3: "SQL
// connection pools" among the Execution Context's named service clients).
type SQLBinding struct {
	Name string // binding name exposed to JS, e.g. "DB"
	DSN  string
}

// PushBinding names one push-notification client binding (spec §3: "push
// notification clients"; named "apns" after original_source/src/ctx.rs).
type PushBinding struct {
	Name     string
	CertPEM  []byte
	Sandbox  bool
}

// Metadata is credentials and resource bindings for one app, supplied once
// per process over IPC (spec §6 Init data). Metadata is immutable after
// Execution Context init.
type Metadata struct {
	SQL  []SQLBinding
	Push []PushBinding
	Env  map[string]string
}

// BootstrapDescriptor is serialized and passed to the optional
// __blueboat_app_bootstrap(descriptor) global during context build (§4.3.1,
// §6). Field names match the JS-visible shape the spec requires verbatim.
type BootstrapDescriptor struct {
	MySQL []string          `json:"mysql"`
	APNs  []string          `json:"apns"`
	Env   map[string]string `json:"env"`
}

// Bootstrap builds the descriptor from this Metadata's binding names.
func (m *Metadata) Bootstrap() BootstrapDescriptor {
	d := BootstrapDescriptor{
		MySQL: make([]string, 0, len(m.SQL)),
		APNs:  make([]string, 0, len(m.Push)),
		Env:   m.Env,
	}
	for _, b := range m.SQL {
		d.MySQL = append(d.MySQL, b.Name)
	}
	for _, b := range m.Push {
		d.APNs = append(d.APNs, b.Name)
	}
	return d
}

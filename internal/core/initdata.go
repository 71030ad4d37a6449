package core

// LowPriorityMsg is an opaque message sent over the low-priority channel
// referenced by Execution Context (spec §3: "a low-priority-message
// sender"). The core never interprets its payload.
type LowPriorityMsg struct {
	Kind    string
	Payload []byte
}

// ReliableChannelSeed is opaque handshake data for the reliable-channel
// service the Execution Context starts during init (spec §4.3 step 1). The
// service itself is an external collaborator; the core only holds the seed
// long enough to hand it off.
type ReliableChannelSeed struct {
	Endpoint string
	Token    string
}

// InitData is supplied once per process over IPC (spec §6). It is leaked to
// 'static by Execution Context.Init — modeled here as a plain struct the
// caller keeps alive for the process lifetime (Go has no leak primitive to
// mirror Box::leak with, so callers hold the single instance as a
// process-scoped singleton instead; see DESIGN.md's internal/core entry).
type InitData struct {
	Key      PackageKey
	Package  Package
	Metadata *Metadata
	LPTx     chan<- LowPriorityMsg
	RCH      *ReliableChannelSeed
}

// ProcessName is presented to the external supervisor as the process
// display name (spec §6). Restored from original_source's
// BlueboatInitData::process_name.
func (d *InitData) ProcessName() string {
	return d.Key.String()
}

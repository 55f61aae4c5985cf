// Package control implements the control/debug plane of spec.md §6: a
// length-prefixed TCP/unix request/response framing (the normative wire
// contract) plus an HTTP+WebSocket convenience surface over the same
// request/response types, both funneling into scheduler.Runner's single
// command-channel producer.
package control

import (
	"time"

	"github.com/trustplatform/trustrun/internal/value"
)

// RequestType is the control endpoint's request vocabulary: metadata
// snapshot, variable read/write, breakpoint set/clear, continue, pause,
// reload, io-state snapshot. A step is a pause request whose Names[0] is
// "step"; mesh snapshot/apply travel as variable read/write. There is no
// I/O force request.
type RequestType string

const (
	ReqMetadataSnapshot RequestType = "metadata_snapshot"
	ReqVariableRead     RequestType = "variable_read"
	ReqVariableWrite    RequestType = "variable_write"
	ReqBreakpointSet    RequestType = "breakpoint_set"
	ReqBreakpointClear  RequestType = "breakpoint_clear"
	ReqContinue         RequestType = "continue"
	ReqPause            RequestType = "pause"
	ReqReload           RequestType = "reload"
	ReqIoStateSnapshot  RequestType = "io_state_snapshot"
)

// Request is one control-endpoint call. Id is assigned by the client (or
// minted server-side for transports that don't carry one); AuthToken is
// required on TCP listeners and optional on a unix socket, per spec.md §6.
type Request struct {
	ID        string      `json:"id"`
	Type      RequestType `json:"type"`
	AuthToken string      `json:"auth_token,omitempty"`

	// VariableRead/VariableWrite; Pause with Names[0] == "step"
	Names []string `json:"names,omitempty"`

	// VariableWrite: name -> literal value, one per entry in Names.
	Values []RequestValue `json:"values,omitempty"`

	// BreakpointSet/BreakpointClear
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`

	// Reload
	Bytecode []byte `json:"bytecode,omitempty"`
}

// RequestValue is a wire-friendly (kind, literal) pair for VariableWrite;
// ResolveValues turns a Request's Values into value.Value using this
// package's own kind table (kindByName in value.go).
type RequestValue struct {
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

// Response is the envelope every request gets back, whichever transport
// carried the request in.
type Response struct {
	ID    string      `json:"id"`
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Body  interface{} `json:"body,omitempty"`
}

// MetadataSnapshot is ReqMetadataSnapshot's body.
type MetadataSnapshot struct {
	State        string        `json:"state"`
	LastError    string        `json:"last_error,omitempty"`
	CycleCount   int64         `json:"cycle_count"`
	CycleMin     time.Duration `json:"cycle_min"`
	CycleMax     time.Duration `json:"cycle_max"`
	CycleMean    time.Duration `json:"cycle_mean"`
	HostUptime   uint64        `json:"host_uptime"`
	HostOS       string        `json:"host_os"`
	HostCPUPct   float64       `json:"host_cpu_pct"`
	HostMemUsed  uint64        `json:"host_mem_used"`
	HostMemTotal uint64        `json:"host_mem_total"`
}

// IoStateSnapshot is ReqIoStateSnapshot's body: the most recently published
// status per registered driver.
type IoStateSnapshot struct {
	Drivers map[string]DriverState `json:"drivers"`
}

// DriverState is one driver's last-known health.
type DriverState struct {
	Health string `json:"health"`
	Error  string `json:"error,omitempty"`
}

// AuditEvent is logged (and optionally broadcast) for every request
// handled, per spec.md §6: "id, type, ok, error, auth-present, client,
// timestamp".
type AuditEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	AuthPresent bool     `json:"auth_present"`
	Client     string    `json:"client"`
	Timestamp  time.Time `json:"timestamp"`
}

func valueKind(kind string) (value.Kind, bool) {
	k, ok := kindByName[kind]
	return k, ok
}

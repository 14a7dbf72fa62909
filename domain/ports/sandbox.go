package ports

import (
	"context"
	"encoding/json"
)

// Sandbox instantiates untrusted modules under a resource enforcement
// binding. The binding supplies the effective environment, filesystem
// mounts, the network predicate, and the memory limit.
type Sandbox interface {
	Instantiate(ctx context.Context, componentID string, wasm []byte, binding EnforcementBinding) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is a pre-instantiated, ready-to-call module handle.
type Instance interface {
	// Call invokes an exported function with JSON-encoded arguments.
	Call(ctx context.Context, function string, args json.RawMessage) (json.RawMessage, error)
	// Exports lists the callable exported function names.
	Exports() []string
	Close(ctx context.Context) error
}

// EnforcementBinding is the call-time enforcement surface built from a
// policy document. Gated host operations consult the binding, not the
// original document, so policy edits need an explicit reload.
type EnforcementBinding interface {
	ComponentID() string
	// CheckNetwork rejects outbound connections to ungranted hosts with an
	// actionable PermissionDeniedError.
	CheckNetwork(host string, port int) error
	// CheckFileSystem rejects access outside granted URIs and writes to
	// read-only grants.
	CheckFileSystem(path, operation string) error
	// CheckEnvironment rejects reads of unallowed variables.
	CheckEnvironment(variable string) error
	// Environment returns the effective environment computed at binding
	// construction.
	Environment() map[string]string
	// Mounts returns the filesystem mounts implied by storage grants.
	Mounts() []Mount
	// MemoryLimitBytes returns the memory cap, or 0 when unlimited.
	MemoryLimitBytes() int64
	// ReserveMemory accounts a pending allocation against the limit and
	// returns a ResourceExhaustedError once the limit would be exceeded.
	ReserveMemory(bytes int64) error
}

// Mount maps a granted storage URI onto a sandbox directory mount.
type Mount struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

package entities

import "time"

// ComponentStatus is the lifecycle state of a registry entry.
type ComponentStatus string

// StatusLoaded marks a live, callable component. Loads and unloads commit
// atomically, so no transitional state is ever observable through List.
const StatusLoaded ComponentStatus = "loaded"

// ComponentSummary describes one loaded component to callers of List.
type ComponentSummary struct {
	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Status   ComponentStatus `json:"status"`
	Exports  []string        `json:"exports,omitempty"`
	LoadedAt time.Time       `json:"loaded_at"`
}

// LoadStatus reports whether a load created a new entry or replaced one.
type LoadStatus string

const (
	// LoadStatusNew indicates the component was not previously loaded.
	LoadStatusNew LoadStatus = "new"
	// LoadStatusReplaced indicates the load replaced a live instance.
	LoadStatusReplaced LoadStatus = "replaced"
)

// LoadOutcome is the result of a successful component load.
type LoadOutcome struct {
	ComponentID string     `json:"component_id"`
	Status      LoadStatus `json:"status"`
	Exports     []string   `json:"exports,omitempty"`
}

// RegistryCredential is an explicitly configured registry login.
type RegistryCredential struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// CredentialEntry is a resolved registry credential, consumed for one fetch
// and never persisted by this subsystem.
type CredentialEntry struct {
	Username string
	Secret   string
}

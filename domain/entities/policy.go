package entities

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// AccessType is a single storage access mode.
type AccessType string

const (
	// AccessRead permits reading below a granted URI.
	AccessRead AccessType = "read"
	// AccessWrite permits writing below a granted URI.
	AccessWrite AccessType = "write"
)

// ParseAccessType validates a raw access mode string.
func ParseAccessType(s string) (AccessType, error) {
	switch AccessType(s) {
	case AccessRead, AccessWrite:
		return AccessType(s), nil
	}
	return "", fmt.Errorf("unknown access type %q (expected %q or %q)", s, AccessRead, AccessWrite)
}

// StorageGrant permits filesystem access below a URI with the listed modes.
// URIs are unique within a document; re-granting a URI replaces its modes.
type StorageGrant struct {
	URI    string       `json:"uri" yaml:"uri"`
	Access []AccessType `json:"access" yaml:"access"`
}

// CanRead reports whether the grant includes read access.
func (g StorageGrant) CanRead() bool { return g.hasAccess(AccessRead) }

// CanWrite reports whether the grant includes write access.
func (g StorageGrant) CanWrite() bool { return g.hasAccess(AccessWrite) }

func (g StorageGrant) hasAccess(want AccessType) bool {
	for _, a := range g.Access {
		if a == want {
			return true
		}
	}
	return false
}

// NetworkGrant permits outbound connections to a host. The host is either an
// exact name ("api.example.com") or a wildcard suffix ("*.example.com").
type NetworkGrant struct {
	Host string `json:"host" yaml:"host"`
}

// EnvGrant allows an environment variable by name. When Value is set, the
// component always sees that fixed value; otherwise the value is inherited
// from the host process environment at instantiation time.
type EnvGrant struct {
	Key   string  `json:"key" yaml:"key"`
	Value *string `json:"value,omitempty" yaml:"value,omitempty"`
}

// ResourceLimits carries Kubernetes-style quantity strings ("512Mi", "500m").
// Both fields are optional; an absent limit means unlimited.
type ResourceLimits struct {
	Memory string `json:"memory,omitempty" yaml:"memory,omitempty"`
	CPU    string `json:"cpu,omitempty" yaml:"cpu,omitempty"`
}

// StoragePermissions is the storage section of a policy document.
type StoragePermissions struct {
	Allow []StorageGrant `json:"allow,omitempty" yaml:"allow,omitempty"`
}

// NetworkPermissions is the network section of a policy document.
type NetworkPermissions struct {
	Allow []NetworkGrant `json:"allow,omitempty" yaml:"allow,omitempty"`
}

// EnvironmentPermissions is the environment section of a policy document.
type EnvironmentPermissions struct {
	Allow []EnvGrant `json:"allow,omitempty" yaml:"allow,omitempty"`
}

// ResourcePermissions is the resource-limits section of a policy document.
type ResourcePermissions struct {
	Limits *ResourceLimits `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// Permissions groups every grant kind of a policy document.
type Permissions struct {
	Storage     *StoragePermissions     `json:"storage,omitempty" yaml:"storage,omitempty"`
	Network     *NetworkPermissions     `json:"network,omitempty" yaml:"network,omitempty"`
	Environment *EnvironmentPermissions `json:"environment,omitempty" yaml:"environment,omitempty"`
	Resources   *ResourcePermissions    `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// PolicyVersion is the document version written by this host.
const PolicyVersion = "1.0"

// PolicyDocument is the full set of capabilities granted to one component.
// The zero value (and an absent document) denies every gated operation.
type PolicyDocument struct {
	Version     string      `json:"version" yaml:"version"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions Permissions `json:"permissions" yaml:"permissions"`
}

// NewPolicyDocument returns an empty document for a component.
func NewPolicyDocument(componentID string) *PolicyDocument {
	return &PolicyDocument{
		Version:     PolicyVersion,
		Description: fmt.Sprintf("Permission policy for %s", componentID),
	}
}

// IsEmpty reports whether the document grants nothing.
func (d *PolicyDocument) IsEmpty() bool {
	if d == nil {
		return true
	}
	p := d.Permissions
	if p.Storage != nil && len(p.Storage.Allow) > 0 {
		return false
	}
	if p.Network != nil && len(p.Network.Allow) > 0 {
		return false
	}
	if p.Environment != nil && len(p.Environment.Allow) > 0 {
		return false
	}
	if p.Resources != nil && p.Resources.Limits != nil {
		return false
	}
	return true
}

// Clone returns a deep copy of the document.
func (d *PolicyDocument) Clone() *PolicyDocument {
	if d == nil {
		return nil
	}
	clone := &PolicyDocument{Version: d.Version, Description: d.Description}
	if d.Permissions.Storage != nil {
		grants := make([]StorageGrant, len(d.Permissions.Storage.Allow))
		for i, g := range d.Permissions.Storage.Allow {
			grants[i] = StorageGrant{URI: g.URI, Access: append([]AccessType(nil), g.Access...)}
		}
		clone.Permissions.Storage = &StoragePermissions{Allow: grants}
	}
	if d.Permissions.Network != nil {
		clone.Permissions.Network = &NetworkPermissions{
			Allow: append([]NetworkGrant(nil), d.Permissions.Network.Allow...),
		}
	}
	if d.Permissions.Environment != nil {
		grants := make([]EnvGrant, len(d.Permissions.Environment.Allow))
		for i, g := range d.Permissions.Environment.Allow {
			grants[i] = EnvGrant{Key: g.Key}
			if g.Value != nil {
				v := *g.Value
				grants[i].Value = &v
			}
		}
		clone.Permissions.Environment = &EnvironmentPermissions{Allow: grants}
	}
	if d.Permissions.Resources != nil {
		clone.Permissions.Resources = &ResourcePermissions{}
		if d.Permissions.Resources.Limits != nil {
			limits := *d.Permissions.Resources.Limits
			clone.Permissions.Resources.Limits = &limits
		}
	}
	return clone
}

// GrantStorage adds a storage grant. Re-granting an existing URI replaces
// its access modes (last write wins).
func (d *PolicyDocument) GrantStorage(uri string, access []AccessType) {
	if d.Permissions.Storage == nil {
		d.Permissions.Storage = &StoragePermissions{}
	}
	grant := StorageGrant{URI: uri, Access: append([]AccessType(nil), access...)}
	for i, g := range d.Permissions.Storage.Allow {
		if g.URI == uri {
			d.Permissions.Storage.Allow[i] = grant
			return
		}
	}
	d.Permissions.Storage.Allow = append(d.Permissions.Storage.Allow, grant)
}

// RevokeStorage removes every access mode granted for the URI.
// Returns false if the URI had no grant.
func (d *PolicyDocument) RevokeStorage(uri string) bool {
	if d.Permissions.Storage == nil {
		return false
	}
	allow := d.Permissions.Storage.Allow
	for i, g := range allow {
		if g.URI == uri {
			d.Permissions.Storage.Allow = append(allow[:i], allow[i+1:]...)
			if len(d.Permissions.Storage.Allow) == 0 {
				d.Permissions.Storage = nil
			}
			return true
		}
	}
	return false
}

// GrantNetwork allows outbound access to a host. Duplicate hosts collapse.
func (d *PolicyDocument) GrantNetwork(host string) {
	if d.Permissions.Network == nil {
		d.Permissions.Network = &NetworkPermissions{}
	}
	for _, g := range d.Permissions.Network.Allow {
		if g.Host == host {
			return
		}
	}
	d.Permissions.Network.Allow = append(d.Permissions.Network.Allow, NetworkGrant{Host: host})
}

// RevokeNetwork removes a host grant. Returns false if the host had no grant.
func (d *PolicyDocument) RevokeNetwork(host string) bool {
	if d.Permissions.Network == nil {
		return false
	}
	allow := d.Permissions.Network.Allow
	for i, g := range allow {
		if g.Host == host {
			d.Permissions.Network.Allow = append(allow[:i], allow[i+1:]...)
			if len(d.Permissions.Network.Allow) == 0 {
				d.Permissions.Network = nil
			}
			return true
		}
	}
	return false
}

// GrantEnv allows an environment variable, optionally with a fixed value.
// Re-granting an existing key replaces its value.
func (d *PolicyDocument) GrantEnv(key string, value *string) {
	if d.Permissions.Environment == nil {
		d.Permissions.Environment = &EnvironmentPermissions{}
	}
	grant := EnvGrant{Key: key}
	if value != nil {
		v := *value
		grant.Value = &v
	}
	for i, g := range d.Permissions.Environment.Allow {
		if g.Key == key {
			d.Permissions.Environment.Allow[i] = grant
			return
		}
	}
	d.Permissions.Environment.Allow = append(d.Permissions.Environment.Allow, grant)
}

// RevokeEnv removes an environment variable grant.
func (d *PolicyDocument) RevokeEnv(key string) bool {
	if d.Permissions.Environment == nil {
		return false
	}
	allow := d.Permissions.Environment.Allow
	for i, g := range allow {
		if g.Key == key {
			d.Permissions.Environment.Allow = append(allow[:i], allow[i+1:]...)
			if len(d.Permissions.Environment.Allow) == 0 {
				d.Permissions.Environment = nil
			}
			return true
		}
	}
	return false
}

// SetMemoryLimit records a memory limit quantity. The caller validates the
// quantity string before mutation.
func (d *PolicyDocument) SetMemoryLimit(limit string) {
	d.ensureLimits().Memory = limit
}

// SetCPULimit records a CPU limit quantity.
func (d *PolicyDocument) SetCPULimit(limit string) {
	d.ensureLimits().CPU = limit
}

// RevokeResources removes the entire resource-limits block.
func (d *PolicyDocument) RevokeResources() bool {
	if d.Permissions.Resources == nil {
		return false
	}
	d.Permissions.Resources = nil
	return true
}

func (d *PolicyDocument) ensureLimits() *ResourceLimits {
	if d.Permissions.Resources == nil {
		d.Permissions.Resources = &ResourcePermissions{}
	}
	if d.Permissions.Resources.Limits == nil {
		d.Permissions.Resources.Limits = &ResourceLimits{}
	}
	return d.Permissions.Resources.Limits
}

// StorageGrants returns the storage grants, or nil when none exist.
// Safe to call on a nil document.
func (d *PolicyDocument) StorageGrants() []StorageGrant {
	if d == nil || d.Permissions.Storage == nil {
		return nil
	}
	return d.Permissions.Storage.Allow
}

// AllowedHosts returns the granted network hosts, or nil when none exist.
// Safe to call on a nil document.
func (d *PolicyDocument) AllowedHosts() []string {
	if d == nil || d.Permissions.Network == nil {
		return nil
	}
	hosts := make([]string, 0, len(d.Permissions.Network.Allow))
	for _, g := range d.Permissions.Network.Allow {
		hosts = append(hosts, g.Host)
	}
	return hosts
}

// EnvGrants returns the environment grants, or nil when none exist.
// Safe to call on a nil document.
func (d *PolicyDocument) EnvGrants() []EnvGrant {
	if d == nil || d.Permissions.Environment == nil {
		return nil
	}
	return d.Permissions.Environment.Allow
}

// MemoryLimitBytes returns the memory limit in bytes, or 0 when unlimited.
func (d *PolicyDocument) MemoryLimitBytes() (int64, error) {
	if d == nil || d.Permissions.Resources == nil || d.Permissions.Resources.Limits == nil {
		return 0, nil
	}
	limit := d.Permissions.Resources.Limits.Memory
	if limit == "" {
		return 0, nil
	}
	return ParseMemoryQuantity(limit)
}

// ParseMemoryQuantity converts a Kubernetes-style quantity string into bytes.
func ParseMemoryQuantity(s string) (int64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	bytes, ok := q.AsInt64()
	if !ok || bytes < 0 {
		return 0, fmt.Errorf("quantity %q does not fit in a signed 64-bit byte count", s)
	}
	return bytes, nil
}

// ValidateQuantity checks that a quantity string parses. Used at grant time
// so malformed limits never reach a stored document.
func ValidateQuantity(s string) error {
	_, err := resource.ParseQuantity(s)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return nil
}

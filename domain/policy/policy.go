// Package policy compiles a policy document into a call-time enforcement
// binding. The binding is immutable: edits to the stored document take
// effect on the next compile, which happens when the component reloads.
package policy

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yoktobit/wassette/domain/entities"
	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
)

const fsScheme = "fs://"

// compileConfig holds configuration for binding compilation.
type compileConfig struct {
	secrets         map[string]string
	inherited       map[string]string
	resolveSymlinks bool
	denialHandler   ports.DenialHandler
}

func defaultCompileConfig() compileConfig {
	return compileConfig{
		resolveSymlinks: true,
		denialHandler:   &StderrDenialHandler{},
	}
}

// CompileOption configures binding compilation.
type CompileOption func(*compileConfig)

// WithSecrets supplies the component's secret map. Secrets become part of
// the effective environment, below policy-fixed values in precedence.
func WithSecrets(secrets map[string]string) CompileOption {
	return func(c *compileConfig) {
		c.secrets = secrets
	}
}

// WithInheritedEnvironment supplies the host environment that granted
// variables without a fixed value inherit from.
func WithInheritedEnvironment(env map[string]string) CompileOption {
	return func(c *compileConfig) {
		c.inherited = env
	}
}

// WithSymlinkResolution enables/disables symlink resolution on filesystem
// checks. Default is true. Disable only for testing.
func WithSymlinkResolution(enabled bool) CompileOption {
	return func(c *compileConfig) {
		c.resolveSymlinks = enabled
	}
}

// WithDenialHandler sets the denial handler.
func WithDenialHandler(h ports.DenialHandler) CompileOption {
	return func(c *compileConfig) {
		c.denialHandler = h
	}
}

// Binding is the compiled enforcement surface for one component.
type Binding struct {
	componentID string
	config      compileConfig

	hostExact  map[string]struct{}
	hostSuffix []string

	pathRules []compiledPathRule
	mounts    []ports.Mount

	envAllowed map[string]struct{}
	env        map[string]string

	memLimit    int64
	memMu       sync.Mutex
	memReserved int64
}

type compiledPathRule struct {
	pattern string
	read    bool
	write   bool
}

var _ ports.EnforcementBinding = (*Binding)(nil)

// Compile builds the enforcement binding for a component from its policy
// document. The document is expected to have passed grant-time validation;
// an unparseable memory quantity still fails compilation rather than
// silently running unlimited.
func Compile(componentID string, doc *entities.PolicyDocument, opts ...CompileOption) (*Binding, error) {
	cfg := defaultCompileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Binding{
		componentID: componentID,
		config:      cfg,
		hostExact:   make(map[string]struct{}),
		envAllowed:  make(map[string]struct{}),
		env:         make(map[string]string),
	}

	for _, host := range doc.AllowedHosts() {
		if suffix, ok := strings.CutPrefix(host, "*."); ok {
			b.hostSuffix = append(b.hostSuffix, "."+suffix)
			continue
		}
		b.hostExact[host] = struct{}{}
	}

	for _, grant := range doc.StorageGrants() {
		path := strings.TrimPrefix(grant.URI, fsScheme)
		path = filepath.Clean(path)
		rule := compiledPathRule{
			pattern: path,
			read:    grant.CanRead(),
			write:   grant.CanWrite(),
		}
		if !doublestar.ValidatePattern(rule.pattern) {
			return nil, &domainerrors.InvalidGrantError{
				Field: "uri",
				Value: grant.URI,
				Err:   fmt.Errorf("invalid path pattern"),
			}
		}
		b.pathRules = append(b.pathRules, rule)
		if !strings.ContainsAny(path, "*?[{") {
			b.mounts = append(b.mounts, ports.Mount{
				HostPath:  path,
				GuestPath: path,
				ReadOnly:  !grant.CanWrite(),
			})
		}
	}

	// Effective environment precedence: policy-fixed values win over
	// secrets, secrets win over inherited host values.
	for _, grant := range doc.EnvGrants() {
		b.envAllowed[grant.Key] = struct{}{}
		if grant.Value == nil {
			if v, ok := cfg.inherited[grant.Key]; ok {
				b.env[grant.Key] = v
			}
		}
	}
	for k, v := range cfg.secrets {
		b.envAllowed[k] = struct{}{}
		b.env[k] = v
	}
	for _, grant := range doc.EnvGrants() {
		if grant.Value != nil {
			b.env[grant.Key] = *grant.Value
		}
	}

	limit, err := doc.MemoryLimitBytes()
	if err != nil {
		return nil, &domainerrors.InvalidGrantError{Field: "memory", Err: err}
	}
	b.memLimit = limit

	return b, nil
}

func (b *Binding) ComponentID() string { return b.componentID }

func (b *Binding) CheckNetwork(host string, port int) error {
	if _, ok := b.hostExact[host]; ok {
		return nil
	}
	for _, suffix := range b.hostSuffix {
		if strings.HasSuffix(host, suffix) {
			return nil
		}
	}

	b.config.denialHandler.OnDenial(b.componentID, "network", host, "host not allowed")
	return &domainerrors.PermissionDeniedError{
		ComponentID: b.componentID,
		Capability:  "network",
		Resource:    host,
		Remediation: fmt.Sprintf("grant-network-permission --component-id=%q --host=%q", b.componentID, host),
	}
}

func (b *Binding) CheckFileSystem(path, operation string) error {
	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		b.config.denialHandler.OnDenial(b.componentID, "storage", path, "relative path")
		return b.storageDenied(path, operation)
	}

	// Resolve symlinks to prevent traversal through granted directories.
	if b.config.resolveSymlinks {
		if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
			cleaned = resolved
		}
	}

	write := operation == "write"
	for _, rule := range b.pathRules {
		if write && !rule.write {
			continue
		}
		if !write && !rule.read {
			continue
		}
		if pathWithin(rule.pattern, cleaned) {
			return nil
		}
	}

	b.config.denialHandler.OnDenial(b.componentID, "storage", path, "path not allowed")
	return b.storageDenied(path, operation)
}

func (b *Binding) storageDenied(path, operation string) error {
	access := "read"
	if operation == "write" {
		access = "read,write"
	}
	return &domainerrors.PermissionDeniedError{
		ComponentID: b.componentID,
		Capability:  "storage",
		Resource:    path,
		Remediation: fmt.Sprintf("grant-storage-permission --component-id=%q --uri=%q --access=%q",
			b.componentID, fsScheme+path, access),
	}
}

// pathWithin reports whether path equals the granted pattern, lies under a
// granted directory, or matches a granted glob.
func pathWithin(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		return strings.HasPrefix(path, pattern+string(filepath.Separator))
	}
	matched, _ := doublestar.Match(pattern, path)
	return matched
}

func (b *Binding) CheckEnvironment(variable string) error {
	if _, ok := b.envAllowed[variable]; ok {
		return nil
	}

	b.config.denialHandler.OnDenial(b.componentID, "environment", variable, "variable not allowed")
	return &domainerrors.PermissionDeniedError{
		ComponentID: b.componentID,
		Capability:  "environment",
		Resource:    variable,
		Remediation: fmt.Sprintf("grant-environment-variable-permission --component-id=%q --key=%q", b.componentID, variable),
	}
}

// Environment returns a copy of the effective environment.
func (b *Binding) Environment() map[string]string {
	out := make(map[string]string, len(b.env))
	for k, v := range b.env {
		out[k] = v
	}
	return out
}

func (b *Binding) Mounts() []ports.Mount {
	return append([]ports.Mount(nil), b.mounts...)
}

func (b *Binding) MemoryLimitBytes() int64 { return b.memLimit }

// ReserveMemory accounts bytes against the memory limit. A limit of zero
// means unlimited and every reservation succeeds.
func (b *Binding) ReserveMemory(bytes int64) error {
	if b.memLimit == 0 {
		return nil
	}
	b.memMu.Lock()
	defer b.memMu.Unlock()
	if b.memReserved+bytes > b.memLimit {
		b.config.denialHandler.OnDenial(b.componentID, "memory",
			fmt.Sprintf("%d bytes", bytes), "limit exceeded")
		return &domainerrors.ResourceExhaustedError{
			ComponentID: b.componentID,
			Resource:    "memory",
			Limit:       b.memLimit,
			Requested:   b.memReserved + bytes,
		}
	}
	b.memReserved += bytes
	return nil
}

package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yoktobit/wassette/domain/entities"
	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/policy"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/infrastructure/fetch"
	"github.com/yoktobit/wassette/internal/locking"
)

// Manager owns the component lifecycle. Loads against the same source are
// coalesced; commits against the same identifier serialize; everything
// else runs in parallel.
type Manager struct {
	config   managerConfig
	storage  *ComponentStorage
	policies ports.PolicyStore
	secrets  ports.SecretStore
	fetcher  ports.ModuleFetcher
	sandbox  ports.Sandbox
	registry ports.ComponentRegistry

	loads   singleflight.Group
	commits *locking.KeyedMutex
}

// NewManager wires the lifecycle manager from its collaborators.
func NewManager(
	policies ports.PolicyStore,
	secrets ports.SecretStore,
	fetcher ports.ModuleFetcher,
	sandbox ports.Sandbox,
	registry ports.ComponentRegistry,
	opts ...ManagerOption,
) (*Manager, error) {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	storage, err := NewComponentStorage(cfg.ComponentDir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		config:   cfg,
		storage:  storage,
		policies: policies,
		secrets:  secrets,
		fetcher:  fetcher,
		sandbox:  sandbox,
		registry: registry,
		commits:  locking.NewKeyedMutex(),
	}, nil
}

// Storage exposes the artifact layout, mainly so callers can build the
// known-component guard for the secret store.
func (m *Manager) Storage() *ComponentStorage {
	return m.storage
}

// Known reports whether an identifier names a live instance or an
// installed artifact.
func (m *Manager) Known(componentID string) bool {
	if _, ok := m.registry.Get(componentID); ok {
		return true
	}
	return m.storage.Exists(componentID)
}

// Load fetches, polices, and instantiates a component. Concurrent loads of
// the same source share one execution and all receive its outcome.
// Loading a source whose component is already loaded replaces the old
// instance atomically.
func (m *Manager) Load(ctx context.Context, source string) (*entities.LoadOutcome, error) {
	v, err, _ := m.loads.Do(source, func() (any, error) {
		return m.load(ctx, source)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entities.LoadOutcome), nil
}

func (m *Manager) load(ctx context.Context, source string) (*entities.LoadOutcome, error) {
	start := time.Now()

	fetched, err := m.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	componentID := fetched.ComponentID
	logger := m.config.logger.With("component", componentID, "source", source)

	cleanupStaged := func() {
		if fetched.Temporary {
			os.Remove(fetched.Path)
		}
	}

	wasm, err := os.ReadFile(fetched.Path)
	if err != nil {
		cleanupStaged()
		return nil, &domainerrors.LoadFailureError{Source: source, Stage: "fetch", Err: err}
	}

	binding, doc, err := m.compileBinding(componentID)
	if err != nil {
		cleanupStaged()
		return nil, err
	}

	inst, err := m.sandbox.Instantiate(ctx, componentID, wasm, binding)
	if err != nil {
		cleanupStaged()
		return nil, err
	}

	// Instantiation succeeded; commit under the per-component lock.
	unlock := m.commits.Lock(componentID)
	defer unlock()

	// A cancelled load must leave prior state intact even though the new
	// instance is already built.
	if err := ctx.Err(); err != nil {
		inst.Close(context.WithoutCancel(ctx))
		cleanupStaged()
		return nil, &domainerrors.LoadFailureError{Source: source, Stage: "commit", Err: err}
	}

	if err := m.storage.Install(fetched); err != nil {
		inst.Close(context.WithoutCancel(ctx))
		cleanupStaged()
		return nil, &domainerrors.LoadFailureError{Source: source, Stage: "commit", Err: err}
	}

	entry := &ports.RegistryEntry{
		Summary: entities.ComponentSummary{
			ID:       componentID,
			Source:   source,
			Status:   entities.StatusLoaded,
			Exports:  inst.Exports(),
			LoadedAt: time.Now(),
		},
		Instance: inst,
		Policy:   doc,
	}

	status := entities.LoadStatusNew
	if old, ok := m.registry.Get(componentID); ok {
		status = entities.LoadStatusReplaced
		m.registry.Publish(entry)
		if err := old.Instance.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to close replaced instance", "error", err)
		}
	} else {
		m.registry.Publish(entry)
	}

	logger.Info("component loaded",
		"status", string(status),
		"exports", len(entry.Summary.Exports),
		"duration", time.Since(start))

	return &entities.LoadOutcome{
		ComponentID: componentID,
		Status:      status,
		Exports:     entry.Summary.Exports,
	}, nil
}

// compileBinding snapshots the policy document and secret map into an
// enforcement binding. The returned document is the snapshot the binding
// was compiled from.
func (m *Manager) compileBinding(componentID string) (ports.EnforcementBinding, *entities.PolicyDocument, error) {
	doc, err := m.policies.Get(componentID)
	if err != nil {
		return nil, nil, err
	}
	secrets, err := m.secrets.Load(componentID)
	if err != nil {
		return nil, nil, err
	}

	opts := []policy.CompileOption{
		policy.WithSecrets(secrets),
		policy.WithInheritedEnvironment(m.config.inheritedEnv),
	}
	if m.config.denialHandler != nil {
		opts = append(opts, policy.WithDenialHandler(m.config.denialHandler))
	}
	binding, err := policy.Compile(componentID, doc, opts...)
	if err != nil {
		return nil, nil, err
	}
	return binding, doc, nil
}

// Unload stops a component and removes its artifact. The policy document
// and secrets stay on disk so a future load starts from the same grants.
// Unloading an unknown identifier is a no-op.
func (m *Manager) Unload(ctx context.Context, componentID string) error {
	unlock := m.commits.Lock(componentID)
	defer unlock()

	entry := m.registry.Remove(componentID)
	if entry != nil {
		if err := entry.Instance.Close(ctx); err != nil {
			m.config.logger.Warn("failed to close instance", "component", componentID, "error", err)
		}
	}
	if err := m.storage.Remove(componentID); err != nil {
		return err
	}
	if entry != nil {
		m.config.logger.Info("component unloaded", "component", componentID)
	}
	return nil
}

// List returns a snapshot of loaded components.
func (m *Manager) List() []entities.ComponentSummary {
	return m.registry.List()
}

// Execute calls an exported function on a loaded component.
func (m *Manager) Execute(ctx context.Context, componentID, function string, args json.RawMessage) (json.RawMessage, error) {
	entry, ok := m.registry.Get(componentID)
	if !ok {
		return nil, &domainerrors.NotFoundError{ComponentID: componentID}
	}
	return entry.Instance.Call(ctx, function, args)
}

// LoadExisting restores every installed artifact, bounded by the
// configured parallelism. Individual failures are logged and skipped so
// one corrupt artifact does not block startup.
func (m *Manager) LoadExisting(ctx context.Context) error {
	ids, err := m.storage.List()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.MaxConcurrentLoads)
	for _, id := range ids {
		path := m.storage.ComponentPath(id)
		g.Go(func() error {
			if _, err := m.Load(ctx, path); err != nil {
				m.config.logger.Error("failed to restore component", "component", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Policy returns the stored policy document for a component.
func (m *Manager) Policy(componentID string) (*entities.PolicyDocument, error) {
	return m.policies.Get(componentID)
}

// Grant and revoke operations write through to the policy store. Grants
// may target components that are not loaded; the policy takes effect on
// the next load.

func (m *Manager) GrantStorage(componentID, uri string, access []entities.AccessType) error {
	return m.logGrant(componentID, m.policies.GrantStorage(componentID, uri, access))
}

func (m *Manager) GrantNetwork(componentID, host string) error {
	return m.logGrant(componentID, m.policies.GrantNetwork(componentID, host))
}

func (m *Manager) GrantEnv(componentID, key string, value *string) error {
	return m.logGrant(componentID, m.policies.GrantEnv(componentID, key, value))
}

func (m *Manager) GrantMemory(componentID, limit string) error {
	return m.logGrant(componentID, m.policies.GrantMemory(componentID, limit))
}

func (m *Manager) GrantCPU(componentID, limit string) error {
	return m.logGrant(componentID, m.policies.GrantCPU(componentID, limit))
}

func (m *Manager) RevokeStorage(componentID, uri string) error {
	return m.logGrant(componentID, m.policies.RevokeStorage(componentID, uri))
}

func (m *Manager) RevokeNetwork(componentID, host string) error {
	return m.logGrant(componentID, m.policies.RevokeNetwork(componentID, host))
}

func (m *Manager) RevokeEnv(componentID, key string) error {
	return m.logGrant(componentID, m.policies.RevokeEnv(componentID, key))
}

func (m *Manager) RevokeMemory(componentID string) error {
	return m.logGrant(componentID, m.policies.RevokeMemory(componentID))
}

func (m *Manager) ResetPolicy(componentID string) error {
	return m.logGrant(componentID, m.policies.Reset(componentID))
}

// logGrant notes when a policy change targets a live component, since the
// running instance keeps its compiled binding until reloaded.
func (m *Manager) logGrant(componentID string, err error) error {
	if err != nil {
		return err
	}
	if _, loaded := m.registry.Get(componentID); loaded {
		m.config.logger.Info("policy updated for loaded component; reload to apply",
			"component", componentID)
	}
	return nil
}

// Secret operations delegate to the secret store; the store's component
// guard is built from this manager via Known.

func (m *Manager) ListSecrets(componentID string, showValues bool) (map[string]string, error) {
	return m.secrets.List(componentID, showValues)
}

func (m *Manager) SetSecrets(componentID string, secrets map[string]string) error {
	return m.secrets.Set(componentID, secrets)
}

func (m *Manager) DeleteSecrets(componentID string, keys []string) error {
	return m.secrets.Delete(componentID, keys)
}

// Close unloads nothing but releases sandbox resources. Loaded instances
// are closed individually.
func (m *Manager) Close(ctx context.Context) error {
	var firstErr error
	for _, summary := range m.registry.List() {
		if entry := m.registry.Remove(summary.ID); entry != nil {
			if err := entry.Instance.Close(ctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to close %s: %w", summary.ID, err)
			}
		}
	}
	if err := m.sandbox.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ComponentIDForSource exposes identifier derivation so callers can map a
// source reference to the identifier it will load under.
func ComponentIDForSource(source string) string {
	return fetch.ComponentID(source)
}

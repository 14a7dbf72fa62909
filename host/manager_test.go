package host_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoktobit/wassette/domain/entities"
	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/host"
	"github.com/yoktobit/wassette/host/registry"
	"github.com/yoktobit/wassette/infrastructure/fetch"
	"github.com/yoktobit/wassette/infrastructure/policystore"
	"github.com/yoktobit/wassette/infrastructure/secrets"
)

// fakeSandbox records instantiations and hands out fakeInstances.
type fakeSandbox struct {
	mu           sync.Mutex
	instantiated int
	failWith     error
	block        chan struct{} // when set, Instantiate waits for a signal
	instances    []*fakeInstance
}

func (s *fakeSandbox) Instantiate(ctx context.Context, componentID string, wasm []byte, binding ports.EnforcementBinding) (ports.Instance, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instantiated++
	if s.failWith != nil {
		return nil, s.failWith
	}
	inst := &fakeInstance{id: componentID, binding: binding}
	s.instances = append(s.instances, inst)
	return inst, nil
}

func (s *fakeSandbox) Close(context.Context) error { return nil }

func (s *fakeSandbox) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instantiated
}

type fakeInstance struct {
	id      string
	binding ports.EnforcementBinding
	closed  atomic.Bool
}

func (i *fakeInstance) Call(_ context.Context, function string, args json.RawMessage) (json.RawMessage, error) {
	if function != "run" {
		return nil, fmt.Errorf("unknown export %q", function)
	}
	return json.RawMessage(`{"echo":true}`), nil
}

func (i *fakeInstance) Exports() []string { return []string{"run"} }

func (i *fakeInstance) Close(context.Context) error {
	i.closed.Store(true)
	return nil
}

type env struct {
	manager  *host.Manager
	sandbox  *fakeSandbox
	policies *policystore.FileStore
	secrets  *secrets.Store
	sources  string
}

func newEnv(t *testing.T, opts ...host.ManagerOption) *env {
	t.Helper()

	root := t.TempDir()
	policies := policystore.NewFileStore(policystore.WithDir(filepath.Join(root, "policies")))
	sandbox := &fakeSandbox{}
	reg := registry.NewRegistry()
	fetcher := fetch.NewFetcher(noCredentials{}, fetch.WithStagingDir(t.TempDir()))

	var manager *host.Manager
	secretStore := secrets.NewStore(
		secrets.WithDir(filepath.Join(root, "secrets")),
		secrets.WithComponentChecker(func(id string) bool { return manager.Known(id) }),
	)

	opts = append([]host.ManagerOption{
		host.WithComponentDir(filepath.Join(root, "components")),
	}, opts...)
	manager, err := host.NewManager(policies, secretStore, fetcher, sandbox, reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close(context.Background()) })

	sources := filepath.Join(root, "sources")
	require.NoError(t, os.MkdirAll(sources, 0o755))

	return &env{manager: manager, sandbox: sandbox, policies: policies, secrets: secretStore, sources: sources}
}

type noCredentials struct{}

func (noCredentials) Resolve(_ context.Context, hostname string) (*entities.CredentialEntry, error) {
	return nil, &domainerrors.CredentialResolutionError{Host: hostname, Err: domainerrors.ErrNoCredentials}
}

func (e *env) writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.sources, name)
	require.NoError(t, os.WriteFile(path, []byte("\x00asm\x01\x00\x00\x00"), 0o644))
	return path
}

func TestManager_LoadAndExecute(t *testing.T) {
	e := newEnv(t)
	source := e.writeSource(t, "weather.wasm")

	outcome, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, entities.LoadStatusNew, outcome.Status)
	assert.Equal(t, []string{"run"}, outcome.Exports)

	result, err := e.manager.Execute(context.Background(), outcome.ComponentID, "run", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":true}`, string(result))

	list := e.manager.List()
	require.Len(t, list, 1)
	assert.Equal(t, outcome.ComponentID, list[0].ID)
	assert.Equal(t, entities.StatusLoaded, list[0].Status)
}

func TestManager_LoadCopiesLocalSource(t *testing.T) {
	e := newEnv(t)
	source := e.writeSource(t, "weather.wasm")

	outcome, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)

	_, err = os.Stat(source)
	assert.NoError(t, err, "local source file stays in place")
	assert.True(t, e.manager.Storage().Exists(outcome.ComponentID))
}

func TestManager_ReloadReplaces(t *testing.T) {
	e := newEnv(t)
	source := e.writeSource(t, "weather.wasm")

	first, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)

	second, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, entities.LoadStatusReplaced, second.Status)
	assert.Equal(t, first.ComponentID, second.ComponentID)

	require.Len(t, e.manager.List(), 1, "replacement does not duplicate the entry")
	assert.True(t, e.sandbox.instances[0].closed.Load(), "replaced instance is closed")
}

func TestManager_LoadFailureLeavesNoState(t *testing.T) {
	e := newEnv(t)
	e.sandbox.failWith = &domainerrors.LoadFailureError{Source: "x", Stage: "instantiate", Err: errors.New("bad module")}
	source := e.writeSource(t, "broken.wasm")

	_, err := e.manager.Load(context.Background(), source)
	require.Error(t, err)

	assert.Empty(t, e.manager.List())
	assert.False(t, e.manager.Storage().Exists(host.ComponentIDForSource(source)))
}

func TestManager_ConcurrentLoadsOfSameSourceCoalesce(t *testing.T) {
	e := newEnv(t)
	e.sandbox.block = make(chan struct{})
	source := e.writeSource(t, "weather.wasm")

	var wg sync.WaitGroup
	outcomes := make([]*entities.LoadOutcome, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.manager.Load(context.Background(), source)
			assert.NoError(t, err)
			outcomes[i] = out
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(e.sandbox.block)
	wg.Wait()

	assert.Equal(t, 1, e.sandbox.count(), "one instantiation serves all callers")
	for _, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, outcomes[0].ComponentID, out.ComponentID)
	}
}

func TestManager_CancelledLoadLeavesPriorState(t *testing.T) {
	e := newEnv(t)
	source := e.writeSource(t, "weather.wasm")

	first, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.manager.Load(ctx, source)
	require.Error(t, err)

	list := e.manager.List()
	require.Len(t, list, 1)
	assert.Equal(t, first.ComponentID, list[0].ID)
	assert.False(t, e.sandbox.instances[0].closed.Load(), "prior instance survives a cancelled reload")
}

func TestManager_UnloadKeepsPolicyAndSecrets(t *testing.T) {
	e := newEnv(t)
	source := e.writeSource(t, "weather.wasm")

	outcome, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)
	id := outcome.ComponentID

	require.NoError(t, e.manager.GrantNetwork(id, "api.weather.gov"))
	require.NoError(t, e.manager.SetSecrets(id, map[string]string{"API_KEY": "abc"}))

	require.NoError(t, e.manager.Unload(context.Background(), id))
	require.NoError(t, e.manager.Unload(context.Background(), id), "unload is idempotent")

	assert.Empty(t, e.manager.List())
	assert.False(t, e.manager.Storage().Exists(id), "artifact is removed")

	doc, err := e.manager.Policy(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"api.weather.gov"}, doc.AllowedHosts(), "policy survives unload")

	stored, err := e.secrets.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "abc", stored["API_KEY"], "secrets survive unload")
}

func TestManager_ExecuteUnknownComponent(t *testing.T) {
	e := newEnv(t)

	_, err := e.manager.Execute(context.Background(), "ghost", "run", nil)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestManager_SecretsRequireKnownComponent(t *testing.T) {
	e := newEnv(t)

	err := e.manager.SetSecrets("ghost", map[string]string{"A": "1"})
	assert.True(t, domainerrors.IsNotFound(err))

	// An installed artifact counts as known even when not loaded.
	source := e.writeSource(t, "weather.wasm")
	outcome, err := e.manager.Load(context.Background(), source)
	require.NoError(t, err)
	require.NoError(t, e.manager.Unload(context.Background(), outcome.ComponentID))

	err = e.manager.SetSecrets(outcome.ComponentID, map[string]string{"A": "1"})
	assert.True(t, domainerrors.IsNotFound(err), "unloaded component with removed artifact is unknown")
}

func TestManager_GrantsAllowedForUnloadedComponents(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.manager.GrantNetwork("future-component", "example.com"))
	doc, err := e.manager.Policy("future-component")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, doc.AllowedHosts())
}

func TestManager_LoadExisting(t *testing.T) {
	e := newEnv(t)
	sourceA := e.writeSource(t, "alpha.wasm")
	sourceB := e.writeSource(t, "beta.wasm")

	outA, err := e.manager.Load(context.Background(), sourceA)
	require.NoError(t, err)
	outB, err := e.manager.Load(context.Background(), sourceB)
	require.NoError(t, err)
	require.NoError(t, e.manager.GrantNetwork(outA.ComponentID, "api.weather.gov"))

	// Simulate a restart: new manager over the same component dir.
	restarted := newEnvOver(t, e)
	require.NoError(t, restarted.manager.LoadExisting(context.Background()))

	list := restarted.manager.List()
	ids := []string{}
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{outA.ComponentID, outB.ComponentID}, ids)

	// Restoring must not install copies of the artifacts under new ids.
	installed, err := restarted.manager.Storage().List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{outA.ComponentID, outB.ComponentID}, installed)

	// The restored instance runs under the policy granted before restart.
	found := false
	for _, inst := range restarted.sandbox.instances {
		if inst.id != outA.ComponentID {
			continue
		}
		found = true
		assert.NoError(t, inst.binding.CheckNetwork("api.weather.gov", 443),
			"restored component keeps its granted policy")
	}
	assert.True(t, found, "restored instance for %s not found", outA.ComponentID)
}

// newEnvOver builds a second manager sharing e's component dir, as after a
// process restart.
func newEnvOver(t *testing.T, e *env) *env {
	t.Helper()

	sandbox := &fakeSandbox{}
	reg := registry.NewRegistry()
	fetcher := fetch.NewFetcher(noCredentials{}, fetch.WithStagingDir(t.TempDir()))

	var manager *host.Manager
	secretStore := secrets.NewStore(
		secrets.WithDir(t.TempDir()),
		secrets.WithComponentChecker(func(id string) bool { return manager.Known(id) }),
	)
	manager, err := host.NewManager(e.policies, secretStore, fetcher, sandbox, reg,
		host.WithComponentDir(e.manager.Storage().Root()))
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close(context.Background()) })

	return &env{manager: manager, sandbox: sandbox, policies: e.policies, secrets: secretStore, sources: e.sources}
}

func TestManager_RequiresComponentDir(t *testing.T) {
	_, err := host.NewManager(nil, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}

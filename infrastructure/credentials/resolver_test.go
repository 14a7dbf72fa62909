package credentials_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoktobit/wassette/domain/entities"
	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/infrastructure/credentials"
)

type stubStrategy struct {
	name  string
	entry *entities.CredentialEntry
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Resolve(_ context.Context, _ string) (*entities.CredentialEntry, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	return s.entry, s.entry != nil, nil
}

func TestChainResolver_FirstMatchWins(t *testing.T) {
	first := &stubStrategy{name: "first", entry: &entities.CredentialEntry{Username: "alice", Secret: "one"}}
	second := &stubStrategy{name: "second", entry: &entities.CredentialEntry{Username: "bob", Secret: "two"}}
	resolver := credentials.NewChainResolver([]ports.CredentialStrategy{first, second})

	entry, err := resolver.Resolve(context.Background(), "ghcr.io")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Username)
	assert.Zero(t, second.calls, "later strategies are not consulted after a match")
}

func TestChainResolver_FailureFallsThrough(t *testing.T) {
	failing := &stubStrategy{name: "failing", err: fmt.Errorf("helper exploded")}
	working := &stubStrategy{name: "working", entry: &entities.CredentialEntry{Username: "alice", Secret: "one"}}
	resolver := credentials.NewChainResolver([]ports.CredentialStrategy{failing, working})

	entry, err := resolver.Resolve(context.Background(), "ghcr.io")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Username)
}

func TestChainResolver_ExhaustedChain(t *testing.T) {
	resolver := credentials.NewChainResolver([]ports.CredentialStrategy{
		&stubStrategy{name: "empty"},
	})

	_, err := resolver.Resolve(context.Background(), "ghcr.io")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrNoCredentials))

	var resolution *domainerrors.CredentialResolutionError
	require.True(t, errors.As(err, &resolution))
	assert.Equal(t, "ghcr.io", resolution.Host)
}

func TestConfigStrategy(t *testing.T) {
	strategy := credentials.NewConfigStrategy(map[string]entities.RegistryCredential{
		"ghcr.io": {Username: "alice", Password: "token"},
	})

	entry, ok, err := strategy.Resolve(context.Background(), "ghcr.io")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, "token", entry.Secret)

	_, ok, err = strategy.Resolve(context.Background(), "docker.io")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoredAuthStrategy_RequiresOptIn(t *testing.T) {
	auth := base64.StdEncoding.EncodeToString([]byte("alice:hunter2"))
	strategy := credentials.NewStoredAuthStrategy(map[string]string{"ghcr.io": auth})

	_, ok, err := strategy.Resolve(context.Background(), "ghcr.io")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), credentials.AllowStoredAuthEnv)
}

func TestStoredAuthStrategy_OptedIn(t *testing.T) {
	t.Setenv(credentials.AllowStoredAuthEnv, "1")

	auth := base64.StdEncoding.EncodeToString([]byte("alice:hunter2"))
	strategy := credentials.NewStoredAuthStrategy(map[string]string{"ghcr.io": auth})

	entry, ok, err := strategy.Resolve(context.Background(), "ghcr.io")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, "hunter2", entry.Secret)

	// Unknown hosts decline rather than error.
	_, ok, err = strategy.Resolve(context.Background(), "docker.io")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoredAuthStrategy_MalformedAuth(t *testing.T) {
	t.Setenv(credentials.AllowStoredAuthEnv, "true")

	tests := []struct {
		name string
		auth string
	}{
		{"not base64", "%%%"},
		{"no separator", base64.StdEncoding.EncodeToString([]byte("alicewithoutcolon"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := credentials.NewStoredAuthStrategy(map[string]string{"ghcr.io": tt.auth})
			_, ok, err := strategy.Resolve(context.Background(), "ghcr.io")
			assert.False(t, ok)
			assert.Error(t, err)
		})
	}
}

package credentials

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/yoktobit/wassette/domain/entities"
	"github.com/yoktobit/wassette/domain/ports"
)

// AllowStoredAuthEnv gates the stored-auth strategy. Raw base64 auth
// entries from registry config files are only consulted when this
// environment variable is set to "1" or "true".
const AllowStoredAuthEnv = "WASSETTE_ALLOW_STORED_REGISTRY_AUTH"

// StoredAuthStrategy resolves credentials from raw base64 "auth" entries
// of a Docker-style config file. It sits last in the chain and is opt-in.
type StoredAuthStrategy struct {
	auths map[string]string
	// env reads environment variables. Overridable for tests.
	env func(string) string
}

var _ ports.CredentialStrategy = (*StoredAuthStrategy)(nil)

// NewStoredAuthStrategy creates a strategy over a registry-host keyed map
// of base64-encoded "user:password" entries.
func NewStoredAuthStrategy(auths map[string]string) *StoredAuthStrategy {
	return &StoredAuthStrategy{auths: auths, env: os.Getenv}
}

func (s *StoredAuthStrategy) Name() string { return "stored-auth" }

func (s *StoredAuthStrategy) Resolve(_ context.Context, registryHost string) (*entities.CredentialEntry, bool, error) {
	raw, ok := s.auths[registryHost]
	if !ok {
		return nil, false, nil
	}

	if v := s.env(AllowStoredAuthEnv); v != "1" && v != "true" {
		return nil, false, fmt.Errorf("stored auth for %s present but %s is not set", registryHost, AllowStoredAuthEnv)
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, false, fmt.Errorf("stored auth for %s is not valid base64: %w", registryHost, err)
	}
	user, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, false, fmt.Errorf("stored auth for %s is not user:password", registryHost)
	}
	return &entities.CredentialEntry{Username: user, Secret: secret}, true, nil
}

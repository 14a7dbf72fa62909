package credentials

import (
	"context"

	"github.com/yoktobit/wassette/domain/entities"
	"github.com/yoktobit/wassette/domain/ports"
)

// ConfigStrategy resolves credentials from explicitly configured registry
// logins. It sits first in the chain so operator configuration always
// wins.
type ConfigStrategy struct {
	logins map[string]entities.RegistryCredential
}

var _ ports.CredentialStrategy = (*ConfigStrategy)(nil)

// NewConfigStrategy creates a strategy over a registry-host keyed map of
// configured logins.
func NewConfigStrategy(logins map[string]entities.RegistryCredential) *ConfigStrategy {
	return &ConfigStrategy{logins: logins}
}

func (s *ConfigStrategy) Name() string { return "config" }

func (s *ConfigStrategy) Resolve(_ context.Context, registryHost string) (*entities.CredentialEntry, bool, error) {
	login, ok := s.logins[registryHost]
	if !ok {
		return nil, false, nil
	}
	return &entities.CredentialEntry{Username: login.Username, Secret: login.Password}, true, nil
}

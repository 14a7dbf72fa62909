// Package credentials resolves registry authentication through an ordered
// strategy chain: explicit configuration, then credential helper
// processes, then raw stored auth entries.
package credentials

import (
	"context"
	"log/slog"

	"github.com/yoktobit/wassette/domain/entities"
	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
)

// chainConfig holds configuration for the ChainResolver.
type chainConfig struct {
	logger *slog.Logger
}

func defaultChainConfig() chainConfig {
	return chainConfig{logger: slog.Default()}
}

// ChainOption configures a ChainResolver.
type ChainOption func(*chainConfig)

// WithLogger sets the logger for strategy failures.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *chainConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ChainResolver tries each strategy in order. A strategy that fails is
// logged and skipped; a strategy that declines falls through silently.
// When the chain is exhausted the resolver returns ErrNoCredentials.
type ChainResolver struct {
	config     chainConfig
	strategies []ports.CredentialStrategy
}

var _ ports.CredentialResolver = (*ChainResolver)(nil)

// NewChainResolver creates a resolver over the given ordered strategies.
func NewChainResolver(strategies []ports.CredentialStrategy, opts ...ChainOption) *ChainResolver {
	cfg := defaultChainConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ChainResolver{config: cfg, strategies: strategies}
}

// Resolve returns the first credential produced by the chain.
func (r *ChainResolver) Resolve(ctx context.Context, registryHost string) (*entities.CredentialEntry, error) {
	for _, strategy := range r.strategies {
		entry, ok, err := strategy.Resolve(ctx, registryHost)
		if err != nil {
			r.config.logger.Warn("credential strategy failed",
				"strategy", strategy.Name(),
				"registry", registryHost,
				"error", err)
			continue
		}
		if ok {
			return entry, nil
		}
	}
	return nil, &domainerrors.CredentialResolutionError{
		Host: registryHost,
		Err:  domainerrors.ErrNoCredentials,
	}
}

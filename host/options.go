package host

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/yoktobit/wassette/domain/ports"
)

// managerConfig holds configuration for the Manager. Validated on
// construction so a misconfigured manager fails fast.
type managerConfig struct {
	ComponentDir       string `validate:"required"`
	MaxConcurrentLoads int    `validate:"gte=1,lte=64"`

	logger        *slog.Logger
	inheritedEnv  map[string]string
	denialHandler ports.DenialHandler
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		MaxConcurrentLoads: 4,
		logger:             slog.Default(),
	}
}

// ManagerOption configures the Manager.
type ManagerOption func(*managerConfig)

// WithComponentDir sets the artifact storage root. Required.
func WithComponentDir(dir string) ManagerOption {
	return func(c *managerConfig) {
		c.ComponentDir = dir
	}
}

// WithMaxConcurrentLoads bounds startup restore parallelism.
func WithMaxConcurrentLoads(n int) ManagerOption {
	return func(c *managerConfig) {
		c.MaxConcurrentLoads = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInheritedEnvironment sets the host environment that value-less env
// grants may inherit from. Defaults to an empty environment, so nothing
// leaks unless explicitly provided.
func WithInheritedEnvironment(env map[string]string) ManagerOption {
	return func(c *managerConfig) {
		c.inheritedEnv = env
	}
}

// WithDenialHandler sets the denial handler installed into every
// compiled binding.
func WithDenialHandler(h ports.DenialHandler) ManagerOption {
	return func(c *managerConfig) {
		c.denialHandler = h
	}
}

func (c managerConfig) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid manager configuration: %w", err)
	}
	return nil
}

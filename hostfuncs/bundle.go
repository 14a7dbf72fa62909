package hostfuncs

import (
	"context"

	"github.com/yoktobit/wassette/domain/ports"
)

// Host function names exported to components.
const (
	FuncHTTPRequest = "http-request"
	FuncEnvGet      = "get-environment-variable"
)

// WithBindingBundle registers the capability-gated host functions for one
// component, closed over its enforcement binding.
func WithBindingBundle(binding ports.EnforcementBinding, httpOpts ...HTTPOption) RegistryOption {
	return func(b *registryBuilder) {
		httpHandler := NewJSONHandler(func(ctx context.Context, req HTTPRequest) HTTPResponse {
			return PerformHTTPRequest(ctx, req, binding, httpOpts...)
		})
		envHandler := NewJSONHandler(func(ctx context.Context, req EnvRequest) EnvResponse {
			return PerformEnvLookup(ctx, req, binding)
		})
		for name, handler := range map[string]ByteHandler{
			FuncHTTPRequest: httpHandler,
			FuncEnvGet:      envHandler,
		} {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

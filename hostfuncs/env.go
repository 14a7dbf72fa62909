package hostfuncs

import (
	"context"

	"github.com/yoktobit/wassette/domain/ports"
)

// EnvRequest asks for one environment variable.
type EnvRequest struct {
	// Key is the variable name.
	Key string `json:"key"`
}

// EnvResponse carries the variable value from the component's effective
// environment.
type EnvResponse struct {
	// Error contains the structured error if the read was denied.
	Error *ErrorResponse `json:"error,omitempty"`

	// Value is the variable value.
	Value string `json:"value"`

	// Found reports whether the variable is present in the effective
	// environment.
	Found bool `json:"found"`
}

// PerformEnvLookup reads a variable from the component's effective
// environment. Access is gated by the environment predicate; values come
// from the binding, never directly from the host process environment.
func PerformEnvLookup(_ context.Context, req EnvRequest, binding ports.EnforcementBinding) EnvResponse {
	if req.Key == "" {
		resp := NewValidationError("key must not be empty")
		return EnvResponse{Error: &resp}
	}

	if err := binding.CheckEnvironment(req.Key); err != nil {
		resp := ErrorToResponse(err)
		return EnvResponse{Error: &resp}
	}

	value, ok := binding.Environment()[req.Key]
	return EnvResponse{Value: value, Found: ok}
}

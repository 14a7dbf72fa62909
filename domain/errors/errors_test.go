package errors_test

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoktobit/wassette/domain/errors"
)

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("secret set: %w", &errors.NotFoundError{ComponentID: "fetch-rs"})
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "component not found: fetch-rs")
	assert.False(t, errors.IsNotFound(stdErrors.New("unrelated")))
}

func TestInvalidGrantError_Unwrap(t *testing.T) {
	cause := stdErrors.New("bad suffix")
	err := &errors.InvalidGrantError{Field: "memory", Value: "512Zz", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `invalid memory grant "512Zz"`)
}

func TestPermissionDeniedError_Remediation(t *testing.T) {
	err := &errors.PermissionDeniedError{
		ComponentID: "fetch-rs",
		Capability:  "network",
		Resource:    "api.example.com",
		Remediation: `grant-network-permission --component-id="fetch-rs" --host="api.example.com"`,
	}
	assert.Contains(t, err.Error(), "network permission denied")
	assert.Contains(t, err.Error(), "grant-network-permission")

	var denied *errors.PermissionDeniedError
	require.True(t, stdErrors.As(fmt.Errorf("call: %w", err), &denied))
	assert.Equal(t, "api.example.com", denied.Resource)
}

func TestResourceExhaustedError(t *testing.T) {
	err := &errors.ResourceExhaustedError{
		ComponentID: "alloc-heavy",
		Resource:    "memory",
		Limit:       64 << 20,
		Requested:   128 << 20,
	}
	assert.Contains(t, err.Error(), "memory limit exhausted")
}

func TestLoadFailureError_Unwrap(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := &errors.LoadFailureError{Source: "oci://ghcr.io/acme/tool:v1", Stage: "fetch", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "during fetch")
}

func TestCredentialResolutionError(t *testing.T) {
	err := &errors.CredentialResolutionError{Host: "ghcr.io", Err: errors.ErrNoCredentials}
	assert.ErrorIs(t, err, errors.ErrNoCredentials)
}

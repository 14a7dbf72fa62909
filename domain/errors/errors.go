// Package errors provides the typed error taxonomy of the component host.
// All error types support matching via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrNoCredentials is returned by credential resolution when every strategy
// declined and the final opt-in step was not enabled.
var ErrNoCredentials = stdErrors.New("no credentials available")

// NotFoundError reports an unknown component identifier.
type NotFoundError struct {
	ComponentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("component not found: %s", e.ComponentID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return stdErrors.As(err, &nf)
}

// InvalidGrantError reports malformed grant input (quantity, URI, or host).
// Validation happens before any state mutation, so a stored document is
// never touched by a rejected grant.
type InvalidGrantError struct {
	Err   error
	Field string
	Value string
}

func (e *InvalidGrantError) Error() string {
	return fmt.Sprintf("invalid %s grant %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidGrantError) Unwrap() error {
	return e.Err
}

// PermissionDeniedError reports a runtime enforcement denial. Remediation
// names the exact grant command that would allow the operation.
type PermissionDeniedError struct {
	ComponentID string
	Capability  string // "network", "storage", "environment"
	Resource    string
	Remediation string
}

func (e *PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("%s permission denied: component %q attempted to access %q without a matching grant",
		e.Capability, e.ComponentID, e.Resource)
	if e.Remediation != "" {
		msg += "\n\nTo grant access, use:\n  " + e.Remediation
	}
	return msg
}

// ResourceExhaustedError reports that a component hit a configured
// memory/CPU limit during execution. The host process and sibling
// components are unaffected.
type ResourceExhaustedError struct {
	ComponentID string
	Resource    string // "memory", "cpu"
	Limit       int64
	Requested   int64
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("%s limit exhausted for component %q: requested %d, limit %d",
		e.Resource, e.ComponentID, e.Requested, e.Limit)
}

// LoadFailureError reports a failed fetch, credential resolution, or
// instantiation. A load failure always leaves the registry without a
// partial entry.
type LoadFailureError struct {
	Err    error
	Source string
	Stage  string // "fetch", "stage", "policy", "instantiate"
}

func (e *LoadFailureError) Error() string {
	return fmt.Sprintf("failed to load component from %q during %s: %v", e.Source, e.Stage, e.Err)
}

func (e *LoadFailureError) Unwrap() error {
	return e.Err
}

// CredentialResolutionError reports that every resolution step for a
// registry host failed. Individual strategy failures fall through the
// chain and are only surfaced when the operation required credentials.
type CredentialResolutionError struct {
	Err  error
	Host string
}

func (e *CredentialResolutionError) Error() string {
	return fmt.Sprintf("credential resolution failed for registry %q: %v", e.Host, e.Err)
}

func (e *CredentialResolutionError) Unwrap() error {
	return e.Err
}

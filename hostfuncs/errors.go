package hostfuncs

import (
	"encoding/json"
	"fmt"

	domainerrors "github.com/yoktobit/wassette/domain/errors"
)

// ErrorResponse is a structured error returned as JSON to components.
// Components receive consistent, parseable errors instead of traps.
type ErrorResponse struct {
	// Error is a machine-readable error type identifier.
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Remediation carries the grant command that would allow the denied
	// operation. Only set for permission denials.
	Remediation string `json:"remediation,omitempty"`

	// Code is a numeric error code.
	Code int `json:"code"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: "VALIDATION_ERROR", Message: message, Code: 400}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: "NOT_FOUND", Message: "unknown host function: " + name, Code: 404}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: message, Code: 500}
}

// NewPermissionDeniedError creates an error response for a policy denial,
// preserving the remediation command.
func NewPermissionDeniedError(err *domainerrors.PermissionDeniedError) ErrorResponse {
	return ErrorResponse{
		Error:       "PERMISSION_DENIED",
		Message:     fmt.Sprintf("access to %s %q denied for component %s", err.Capability, err.Resource, err.ComponentID),
		Remediation: err.Remediation,
		Code:        403,
	}
}

// NewResourceExhaustedError creates an error response for a resource limit
// violation.
func NewResourceExhaustedError(err *domainerrors.ResourceExhaustedError) ErrorResponse {
	return ErrorResponse{
		Error:   "RESOURCE_EXHAUSTED",
		Message: err.Error(),
		Code:    429,
	}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	if err, ok := panicValue.(error); ok {
		msg = err.Error()
	} else {
		msg = fmt.Sprintf("%v", panicValue)
	}
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: "host function panicked: " + msg, Code: 500}
}

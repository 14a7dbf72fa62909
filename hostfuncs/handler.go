package hostfuncs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainerrors "github.com/yoktobit/wassette/domain/errors"
)

// HostFunc is a typed host function: context and request in, response out.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler accepts raw JSON bytes and returns raw JSON bytes. This is
// the common shape the sandbox runtime dispatches to.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler, handling
// request unmarshalling and response marshalling.
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}

		resp := fn(ctx, req)

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}

		return respBytes, nil
	}
}

// ErrorToResponse maps enforcement and runtime errors onto the structured
// error envelope delivered to guests. Denials keep their remediation text
// so an agent reading the response can repair the policy.
func ErrorToResponse(err error) ErrorResponse {
	var denied *domainerrors.PermissionDeniedError
	if errors.As(err, &denied) {
		return NewPermissionDeniedError(denied)
	}
	var exhausted *domainerrors.ResourceExhaustedError
	if errors.As(err, &exhausted) {
		return NewResourceExhaustedError(exhausted)
	}
	return NewInternalError(err.Error())
}

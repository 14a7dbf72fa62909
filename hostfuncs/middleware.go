package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a ByteHandler to add cross-cutting behavior. Middleware
// executes in registration order, onion-style.
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware catches handler panics and converts them to
// structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil // Deliver JSON error, not a Go error
				}
			}()
			return next(ctx, payload)
		}
	}
}

// SlogMiddleware logs host function invocations with their duration.
func SlogMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName := "unknown"
			if hc, ok := ctx.(HostContext); ok {
				funcName = hc.FunctionName()
			}
			start := time.Now()
			resp, err := next(ctx, payload)
			if err != nil {
				logger.WarnContext(ctx, "host function failed",
					"function", funcName, "duration", time.Since(start), "error", err)
			} else {
				logger.DebugContext(ctx, "host function completed",
					"function", funcName, "duration", time.Since(start))
			}
			return resp, err
		}
	}
}

package hostfuncs

import "context"

// HostContext carries the invoked function name alongside the request
// context so middleware can identify the call without re-threading it.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string
}

type hostContext struct {
	context.Context
	funcName string
}

func (c *hostContext) FunctionName() string { return c.funcName }

// HostContextFrom wraps ctx with the function name, reusing an existing
// HostContext when the call is already wrapped.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return &hostContext{Context: ctx, funcName: funcName}
}

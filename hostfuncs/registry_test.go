package hostfuncs_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoktobit/wassette/hostfuncs"
)

func echoHandler(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func TestRegistry_InvokeKnownHandler(t *testing.T) {
	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithByteHandler("echo", echoHandler),
	)
	require.NoError(t, err)

	resp, err := registry.Invoke(context.Background(), "echo", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(resp))
}

func TestRegistry_UnknownHandlerReturnsErrorJSON(t *testing.T) {
	registry, err := hostfuncs.NewRegistry()
	require.NoError(t, err)

	resp, err := registry.Invoke(context.Background(), "nope", nil)
	require.NoError(t, err)

	var errResp hostfuncs.ErrorResponse
	require.NoError(t, json.Unmarshal(resp, &errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Error)
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	_, err := hostfuncs.NewRegistry(
		hostfuncs.WithByteHandler("echo", echoHandler),
		hostfuncs.WithByteHandler("echo", echoHandler),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithByteHandler("zeta", echoHandler),
		hostfuncs.WithByteHandler("alpha", echoHandler),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, registry.Names())
	assert.True(t, registry.Has("alpha"))
	assert.False(t, registry.Has("beta"))
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) hostfuncs.Middleware {
		return func(next hostfuncs.ByteHandler) hostfuncs.ByteHandler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, payload)
			}
		}
	}

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(mw("first"), mw("second")),
		hostfuncs.WithByteHandler("echo", echoHandler),
	)
	require.NoError(t, err)

	_, err = registry.Invoke(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

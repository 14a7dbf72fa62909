package host_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoktobit/wassette/host"
)

func TestSchemaRegistry(t *testing.T) {
	r, err := host.NewSchemaRegistry()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"grant-storage-permission",
		"grant-network-permission",
		"grant-environment-variable-permission",
		"grant-resource-limit",
	}, r.Kinds())

	schema, ok := r.Get("grant-network-permission")
	require.True(t, ok)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(schema), &parsed))
	assert.Contains(t, schema, "component_id")
	assert.Contains(t, schema, "host")

	_, ok = r.Get("grant-unknown")
	assert.False(t, ok)
}

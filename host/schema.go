package host

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Grant request shapes exposed to agent surfaces. Schemas generated from
// these structs let a caller validate a grant before submitting it.

// StorageGrantRequest grants filesystem access.
type StorageGrantRequest struct {
	ComponentID string   `json:"component_id" jsonschema:"required,description=Component identifier"`
	URI         string   `json:"uri" jsonschema:"required,description=Filesystem URI using the fs:// scheme"`
	Access      []string `json:"access" jsonschema:"required,description=Access modes: read and/or write"`
}

// NetworkGrantRequest grants outbound network access to one host.
type NetworkGrantRequest struct {
	ComponentID string `json:"component_id" jsonschema:"required,description=Component identifier"`
	Host        string `json:"host" jsonschema:"required,description=Hostname or *.domain wildcard"`
}

// EnvGrantRequest grants access to an environment variable.
type EnvGrantRequest struct {
	ComponentID string  `json:"component_id" jsonschema:"required,description=Component identifier"`
	Key         string  `json:"key" jsonschema:"required,description=Variable name"`
	Value       *string `json:"value,omitempty" jsonschema:"description=Optional fixed value"`
}

// ResourceGrantRequest sets a resource limit.
type ResourceGrantRequest struct {
	ComponentID string `json:"component_id" jsonschema:"required,description=Component identifier"`
	Resource    string `json:"resource" jsonschema:"required,enum=memory,enum=cpu,description=Limited resource"`
	Limit       string `json:"limit" jsonschema:"required,description=Kubernetes-style quantity such as 512Mi or 500m"`
}

// SchemaRegistry serves generated JSON schemas for grant requests.
type SchemaRegistry struct {
	schemas sync.Map // map[string]string
}

// NewSchemaRegistry creates a registry pre-populated with every grant
// request kind.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	r := &SchemaRegistry{}
	for kind, model := range map[string]any{
		"grant-storage-permission":              StorageGrantRequest{},
		"grant-network-permission":              NetworkGrantRequest{},
		"grant-environment-variable-permission": EnvGrantRequest{},
		"grant-resource-limit":                  ResourceGrantRequest{},
	} {
		if err := r.register(kind, model); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *SchemaRegistry) register(kind string, model any) error {
	s := jsonschema.Reflect(model)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for %s: %w", kind, err)
	}
	r.schemas.Store(kind, string(data))
	return nil
}

// Get retrieves the JSON schema for a grant kind.
func (r *SchemaRegistry) Get(kind string) (string, bool) {
	v, ok := r.schemas.Load(kind)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Kinds returns all registered grant kinds.
func (r *SchemaRegistry) Kinds() []string {
	var kinds []string
	r.schemas.Range(func(k, _ any) bool {
		kinds = append(kinds, k.(string))
		return true
	})
	return kinds
}

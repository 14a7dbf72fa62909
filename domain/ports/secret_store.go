package ports

// SecretStore persists one flat key/value secret map per component.
//
// Reads are lazy and cached; the cache is invalidated by the backing
// file's modification time so external edits are picked up without a
// process restart. Writes go through immediately.
type SecretStore interface {
	// List returns the component's secrets. When showValues is false the
	// map values are redacted to empty strings.
	List(componentID string, showValues bool) (map[string]string, error)

	// Load returns the full secret map for effective-environment
	// construction. Missing maps yield an empty result, not an error.
	Load(componentID string) (map[string]string, error)

	// Set writes secrets for a component. Setting secrets for an unknown
	// component returns a NotFoundError instead of creating an orphaned
	// secret file.
	Set(componentID string, secrets map[string]string) error

	// Delete removes keys from a component's secret map, with the same
	// unknown-component guard as Set.
	Delete(componentID string, keys []string) error
}

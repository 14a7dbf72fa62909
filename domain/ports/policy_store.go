package ports

import "github.com/yoktobit/wassette/domain/entities"

// PolicyStore persists one policy document per component identifier.
//
// Every mutation is atomic with respect to the stored document:
// read-modify-write under an exclusive per-identifier lock, persisted
// immediately. Mutations against different identifiers never block each
// other.
type PolicyStore interface {
	// Get returns the stored document for a component, or an empty document
	// if none exists. It never returns an error for an unknown identifier.
	Get(componentID string) (*entities.PolicyDocument, error)

	GrantStorage(componentID, uri string, access []entities.AccessType) error
	GrantNetwork(componentID, host string) error
	GrantEnv(componentID, key string, value *string) error
	GrantMemory(componentID, limit string) error
	GrantCPU(componentID, limit string) error

	// RevokeStorage removes every access mode for the URI.
	RevokeStorage(componentID, uri string) error
	RevokeNetwork(componentID, host string) error
	RevokeEnv(componentID, key string) error
	// RevokeMemory removes the entire resource-limits block.
	RevokeMemory(componentID string) error

	// Reset deletes the stored document, returning the component to an
	// empty (deny-all) policy.
	Reset(componentID string) error

	// Path returns the backing file path for user messaging.
	Path(componentID string) string
}

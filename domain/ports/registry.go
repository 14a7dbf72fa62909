package ports

import "github.com/yoktobit/wassette/domain/entities"

// ComponentRegistry is the concurrency-safe map from component identifier
// to live instance. Identifiers are unique; at most one live instance
// exists per identifier.
type ComponentRegistry interface {
	// Get returns the live entry for an identifier, or false.
	Get(componentID string) (*RegistryEntry, bool)

	// Publish inserts or replaces the entry for an identifier and reports
	// whether an existing live entry was replaced.
	Publish(entry *RegistryEntry) (replaced bool)

	// Remove deletes and returns the entry, or nil when absent.
	Remove(componentID string) *RegistryEntry

	// List returns a snapshot of all loaded entries. It is safe to call
	// concurrently with loads and unloads and never observes a
	// half-constructed entry.
	List() []entities.ComponentSummary
}

// RegistryEntry couples a live instance with the policy snapshot used at
// instantiation. The registry owns the entry for its process lifetime.
type RegistryEntry struct {
	Summary  entities.ComponentSummary
	Instance Instance
	// Policy is the document snapshot in effect when the instance was
	// built. Later policy edits require a reload to take effect.
	Policy *entities.PolicyDocument
}

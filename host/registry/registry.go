// Package registry holds the live component instances. It is the single
// source of truth for which components are loaded.
package registry

import (
	"sync"

	"github.com/yoktobit/wassette/domain/entities"
	"github.com/yoktobit/wassette/domain/ports"
)

// Registry is a concurrency-safe map from component identifier to live
// entry. Entries are published fully constructed; readers never observe a
// partially built instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*ports.RegistryEntry
}

var _ ports.ComponentRegistry = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*ports.RegistryEntry)}
}

// Get returns the live entry for an identifier.
func (r *Registry) Get(componentID string) (*ports.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[componentID]
	return entry, ok
}

// Publish inserts or replaces the entry for an identifier and reports
// whether an existing entry was replaced. The caller owns closing the
// replaced instance.
func (r *Registry) Publish(entry *ports.RegistryEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.entries[entry.Summary.ID]
	r.entries[entry.Summary.ID] = entry
	return replaced
}

// Remove deletes and returns the entry, or nil when absent.
func (r *Registry) Remove(componentID string) *ports.RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entries[componentID]
	delete(r.entries, componentID)
	return entry
}

// List returns a snapshot of all loaded components.
func (r *Registry) List() []entities.ComponentSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.ComponentSummary, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Summary)
	}
	return out
}

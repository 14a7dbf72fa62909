// Package ports defines the interface contracts between the lifecycle
// manager, the persistence layer, and the sandbox. Collaborators depend on
// these contracts, never on concrete containers.
package ports

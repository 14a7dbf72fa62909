package ports

import "context"

// FetchedModule is a module artifact resolved from a source reference.
type FetchedModule struct {
	// ComponentID is derived deterministically from the source and is
	// sanitized for safe storage.
	ComponentID string
	// Path is the artifact's location on disk.
	Path string
	// Temporary marks artifacts staged in a scratch directory that the
	// storage layer may move instead of copy.
	Temporary bool
}

// ModuleFetcher resolves a component source (local path, https:// URL, or
// OCI registry reference) into a local artifact.
type ModuleFetcher interface {
	Fetch(ctx context.Context, source string) (*FetchedModule, error)
}

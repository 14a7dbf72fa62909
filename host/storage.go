package host

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yoktobit/wassette/domain/ports"
)

// ComponentStorage owns the on-disk layout for component artifacts:
// <root>/<component-id>.wasm for installed components and
// <root>/downloads for staging.
type ComponentStorage struct {
	root string
}

// NewComponentStorage creates the storage layout under root.
func NewComponentStorage(root string) (*ComponentStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("component storage root must not be empty")
	}
	if err := os.MkdirAll(filepath.Join(root, "downloads"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create component storage: %w", err)
	}
	return &ComponentStorage{root: root}, nil
}

// Root returns the storage root directory.
func (s *ComponentStorage) Root() string {
	return s.root
}

// StagingDir returns the scratch directory for in-flight downloads.
func (s *ComponentStorage) StagingDir() string {
	return filepath.Join(s.root, "downloads")
}

// ComponentPath returns the installed artifact path for an identifier.
func (s *ComponentStorage) ComponentPath(componentID string) string {
	return filepath.Join(s.root, componentID+".wasm")
}

// Exists reports whether an installed artifact is present.
func (s *ComponentStorage) Exists(componentID string) bool {
	_, err := os.Stat(s.ComponentPath(componentID))
	return err == nil
}

// Install places a fetched artifact at its installed path. Staged
// downloads are moved; local source files are copied so the user's file
// stays in place.
func (s *ComponentStorage) Install(fetched *ports.FetchedModule) error {
	target := s.ComponentPath(fetched.ComponentID)
	if fetched.Temporary {
		return moveFile(fetched.Path, target)
	}
	return copyFile(fetched.Path, target)
}

// Remove deletes the installed artifact. Removing an absent artifact is a
// no-op.
func (s *ComponentStorage) Remove(componentID string) error {
	if err := os.Remove(s.ComponentPath(componentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact for %s: %w", componentID, err)
	}
	return nil
}

// List returns the identifiers of all installed artifacts.
func (s *ComponentStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list component storage: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := strings.CutSuffix(entry.Name(), ".wasm"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// moveFile renames src onto dst, falling back to copy and remove when the
// two paths live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove staged artifact: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer in.Close()

	// Copy into a temp file next to the target and rename so a concurrent
	// reader never sees a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".install-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create install temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close install temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install artifact: %w", err)
	}
	return nil
}

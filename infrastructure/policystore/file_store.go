// Package policystore persists one policy document per component as a YAML
// file named <component-id>.policy.yaml.
package policystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yoktobit/wassette/domain/entities"
	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/internal/locking"
)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	dir      string      // Directory holding the policy files
	dirPerm  os.FileMode // Permission for created directories
	filePerm os.FileMode // Permission for policy files
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		dir:      filepath.Join(os.Getenv("HOME"), ".wassette", "components"),
		dirPerm:  0o755,
		filePerm: 0o600, // User-only read/write (secure default)
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithDir sets the directory holding the policy files.
func WithDir(dir string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dir = dir
	}
}

// WithFilePermissions sets the file permissions for policy files.
// Default is 0o600 (user-only). Use with caution.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the permissions for created directories.
// Default is 0o755.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore provides file-based persistence of policy documents. Every
// mutation is an atomic read-modify-write under a per-component lock, so
// concurrent grants against the same component never lose updates and
// grants against different components never contend.
type FileStore struct {
	config fileStoreConfig
	locks  *locking.KeyedMutex
}

var _ ports.PolicyStore = (*FileStore)(nil)

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg, locks: locking.NewKeyedMutex()}
}

// Path returns the backing file path for a component's policy.
func (s *FileStore) Path(componentID string) string {
	return filepath.Join(s.config.dir, componentID+".policy.yaml")
}

// Get returns the stored document, or an empty document when none exists.
func (s *FileStore) Get(componentID string) (*entities.PolicyDocument, error) {
	if err := validComponentID(componentID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(componentID)
	defer unlock()
	return s.read(componentID)
}

func (s *FileStore) read(componentID string) (*entities.PolicyDocument, error) {
	data, err := os.ReadFile(s.Path(componentID))
	if os.IsNotExist(err) {
		return entities.NewPolicyDocument(componentID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy for %s: %w", componentID, err)
	}

	var doc entities.PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy for %s: %w", componentID, err)
	}
	return &doc, nil
}

func (s *FileStore) write(componentID string, doc *entities.PolicyDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	if err := os.MkdirAll(s.config.dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}

	// Write to a temp file in the same directory and rename over the
	// target so readers never observe a partial document.
	tmp, err := os.CreateTemp(s.config.dir, componentID+".policy.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp policy file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write policy: %w", err)
	}
	if err := tmp.Chmod(s.config.filePerm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set policy file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp policy file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(componentID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace policy file: %w", err)
	}
	return nil
}

// mutate runs fn against the stored document under the component's lock
// and persists the result.
func (s *FileStore) mutate(componentID string, fn func(*entities.PolicyDocument) error) error {
	if err := validComponentID(componentID); err != nil {
		return err
	}
	unlock := s.locks.Lock(componentID)
	defer unlock()

	doc, err := s.read(componentID)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.write(componentID, doc)
}

// GrantStorage grants access to a filesystem URI. Repeated grants for the
// same URI replace the previous access modes.
func (s *FileStore) GrantStorage(componentID, uri string, access []entities.AccessType) error {
	if err := validStorageURI(uri); err != nil {
		return err
	}
	if len(access) == 0 {
		return &domainerrors.InvalidGrantError{
			Field: "access",
			Err:   fmt.Errorf("at least one access mode required"),
		}
	}
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.GrantStorage(uri, access)
		return nil
	})
}

// GrantNetwork grants outbound access to a host, either exact or a
// "*.domain" wildcard.
func (s *FileStore) GrantNetwork(componentID, host string) error {
	if err := validHost(host); err != nil {
		return err
	}
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.GrantNetwork(host)
		return nil
	})
}

// GrantEnv grants access to an environment variable, optionally pinning it
// to a fixed value.
func (s *FileStore) GrantEnv(componentID, key string, value *string) error {
	if key == "" {
		return &domainerrors.InvalidGrantError{
			Field: "key",
			Err:   fmt.Errorf("variable name must not be empty"),
		}
	}
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.GrantEnv(key, value)
		return nil
	})
}

// GrantMemory sets the memory limit. The quantity is validated here so a
// malformed limit is rejected at grant time, not at the next load.
func (s *FileStore) GrantMemory(componentID, limit string) error {
	if err := entities.ValidateQuantity(limit); err != nil {
		return &domainerrors.InvalidGrantError{Field: "memory", Value: limit, Err: err}
	}
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.SetMemoryLimit(limit)
		return nil
	})
}

// GrantCPU sets the CPU limit with grant-time validation.
func (s *FileStore) GrantCPU(componentID, limit string) error {
	if err := entities.ValidateQuantity(limit); err != nil {
		return &domainerrors.InvalidGrantError{Field: "cpu", Value: limit, Err: err}
	}
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.SetCPULimit(limit)
		return nil
	})
}

// RevokeStorage removes every access mode for the URI. Revoking an absent
// URI is a no-op.
func (s *FileStore) RevokeStorage(componentID, uri string) error {
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.RevokeStorage(uri)
		return nil
	})
}

// RevokeNetwork removes a host grant.
func (s *FileStore) RevokeNetwork(componentID, host string) error {
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.RevokeNetwork(host)
		return nil
	})
}

// RevokeEnv removes an environment variable grant.
func (s *FileStore) RevokeEnv(componentID, key string) error {
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.RevokeEnv(key)
		return nil
	})
}

// RevokeMemory removes the entire resource-limits block.
func (s *FileStore) RevokeMemory(componentID string) error {
	return s.mutate(componentID, func(doc *entities.PolicyDocument) error {
		doc.RevokeResources()
		return nil
	})
}

// Reset deletes the stored document, returning the component to an empty
// deny-all policy.
func (s *FileStore) Reset(componentID string) error {
	if err := validComponentID(componentID); err != nil {
		return err
	}
	unlock := s.locks.Lock(componentID)
	defer unlock()

	if err := os.Remove(s.Path(componentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to reset policy for %s: %w", componentID, err)
	}
	return nil
}

func validComponentID(componentID string) error {
	if componentID == "" || strings.ContainsAny(componentID, "/\\") || strings.Contains(componentID, "..") {
		return &domainerrors.InvalidGrantError{
			Field: "component-id",
			Value: componentID,
			Err:   fmt.Errorf("invalid component identifier"),
		}
	}
	return nil
}

func validStorageURI(uri string) error {
	path, ok := strings.CutPrefix(uri, "fs://")
	if !ok || path == "" {
		return &domainerrors.InvalidGrantError{
			Field: "uri",
			Value: uri,
			Err:   fmt.Errorf("storage URIs must use the fs:// scheme with a non-empty path"),
		}
	}
	return nil
}

func validHost(host string) error {
	bad := host == "" ||
		strings.Contains(host, "://") ||
		strings.ContainsAny(host, "/ ")
	if !bad && strings.Contains(host, "*") {
		// Wildcards are only valid as a leading "*." label.
		bad = !strings.HasPrefix(host, "*.") || strings.Contains(host[2:], "*") || host == "*."
	}
	if bad {
		return &domainerrors.InvalidGrantError{
			Field: "host",
			Value: host,
			Err:   fmt.Errorf("host must be a bare hostname, optionally with a leading *. wildcard"),
		}
	}
	return nil
}

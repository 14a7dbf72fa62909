// Package secrets persists per-component secret maps as YAML files named
// <component-id>.secrets.yaml with user-only permissions.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/internal/locking"
)

// ComponentChecker reports whether a component identifier is known, either
// as a live instance or as a stored artifact. It guards Set and Delete so
// secrets are never written for components that do not exist.
type ComponentChecker func(componentID string) bool

// storeConfig holds configuration for the Store.
type storeConfig struct {
	dir      string
	dirPerm  os.FileMode
	filePerm os.FileMode
	checker  ComponentChecker
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		dir:      filepath.Join(os.Getenv("HOME"), ".wassette", "secrets"),
		dirPerm:  0o700, // Secrets directory is user-only
		filePerm: 0o600,
		checker:  func(string) bool { return true },
	}
}

// StoreOption configures a Store instance.
type StoreOption func(*storeConfig)

// WithDir sets the directory holding the secret files.
func WithDir(dir string) StoreOption {
	return func(c *storeConfig) {
		c.dir = dir
	}
}

// WithComponentChecker installs the known-component guard for writes.
func WithComponentChecker(checker ComponentChecker) StoreOption {
	return func(c *storeConfig) {
		if checker != nil {
			c.checker = checker
		}
	}
}

// cacheEntry is a parsed secret map plus the modification time of the file
// it was parsed from.
type cacheEntry struct {
	secrets map[string]string
	modTime time.Time
}

// Store provides file-based secret persistence with a read cache. Cached
// entries are invalidated by the backing file's modification time, so
// edits made outside the process are picked up on the next read.
type Store struct {
	config storeConfig
	locks  *locking.KeyedMutex

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

var _ ports.SecretStore = (*Store)(nil)

// NewStore creates a new Store with the given options.
func NewStore(opts ...StoreOption) *Store {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{
		config: cfg,
		locks:  locking.NewKeyedMutex(),
		cache:  make(map[string]cacheEntry),
	}
}

func (s *Store) path(componentID string) string {
	return filepath.Join(s.config.dir, componentID+".secrets.yaml")
}

// Load returns the component's secret map. A missing file yields an empty
// map, not an error.
func (s *Store) Load(componentID string) (map[string]string, error) {
	path := s.path(componentID)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets for %s: %w", componentID, err)
	}

	s.mu.RLock()
	entry, ok := s.cache[componentID]
	s.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return copyMap(entry.secrets), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets for %s: %w", componentID, err)
	}
	secrets := map[string]string{}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets for %s: %w", componentID, err)
	}

	s.mu.Lock()
	s.cache[componentID] = cacheEntry{secrets: secrets, modTime: info.ModTime()}
	s.mu.Unlock()

	return copyMap(secrets), nil
}

// List returns the component's secrets, with values redacted unless
// showValues is set.
func (s *Store) List(componentID string, showValues bool) (map[string]string, error) {
	secrets, err := s.Load(componentID)
	if err != nil {
		return nil, err
	}
	if showValues {
		return secrets, nil
	}
	redacted := make(map[string]string, len(secrets))
	for k := range secrets {
		redacted[k] = ""
	}
	return redacted, nil
}

// Set writes secrets for a component, merging with any existing keys.
// Unknown components are rejected so no orphaned secret file is created.
func (s *Store) Set(componentID string, secrets map[string]string) error {
	if !s.config.checker(componentID) {
		return &domainerrors.NotFoundError{ComponentID: componentID}
	}

	unlock := s.locks.Lock(componentID)
	defer unlock()

	current, err := s.Load(componentID)
	if err != nil {
		return err
	}
	for k, v := range secrets {
		current[k] = v
	}
	return s.write(componentID, current)
}

// Delete removes keys from a component's secret map. Deleting the last key
// removes the file.
func (s *Store) Delete(componentID string, keys []string) error {
	if !s.config.checker(componentID) {
		return &domainerrors.NotFoundError{ComponentID: componentID}
	}

	unlock := s.locks.Lock(componentID)
	defer unlock()

	current, err := s.Load(componentID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(current, k)
	}
	if len(current) == 0 {
		s.mu.Lock()
		delete(s.cache, componentID)
		s.mu.Unlock()
		if err := os.Remove(s.path(componentID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove secrets for %s: %w", componentID, err)
		}
		return nil
	}
	return s.write(componentID, current)
}

func (s *Store) write(componentID string, secrets map[string]string) error {
	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	if err := os.MkdirAll(s.config.dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}

	path := s.path(componentID)
	if err := os.WriteFile(path, data, s.config.filePerm); err != nil {
		return fmt.Errorf("failed to write secrets for %s: %w", componentID, err)
	}

	// Write-through: refresh the cache from the file just written.
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat written secrets: %w", err)
	}
	s.mu.Lock()
	s.cache[componentID] = cacheEntry{secrets: copyMap(secrets), modTime: info.ModTime()}
	s.mu.Unlock()
	return nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

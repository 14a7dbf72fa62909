package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/infrastructure/secrets"
)

func TestStore_SetAndList(t *testing.T) {
	store := secrets.NewStore(secrets.WithDir(t.TempDir()))

	require.NoError(t, store.Set("comp", map[string]string{"API_KEY": "abc123"}))

	redacted, err := store.List("comp", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": ""}, redacted)

	revealed, err := store.List("comp", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "abc123"}, revealed)
}

func TestStore_SetMergesExistingKeys(t *testing.T) {
	store := secrets.NewStore(secrets.WithDir(t.TempDir()))

	require.NoError(t, store.Set("comp", map[string]string{"A": "1"}))
	require.NoError(t, store.Set("comp", map[string]string{"B": "2"}))

	got, err := store.Load("comp")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, got)
}

func TestStore_UnknownComponentRejected(t *testing.T) {
	store := secrets.NewStore(
		secrets.WithDir(t.TempDir()),
		secrets.WithComponentChecker(func(id string) bool { return id == "known" }),
	)

	err := store.Set("unknown", map[string]string{"A": "1"})
	var notFound *domainerrors.NotFoundError
	require.True(t, errors.As(err, &notFound))

	err = store.Delete("unknown", []string{"A"})
	require.True(t, errors.As(err, &notFound))

	require.NoError(t, store.Set("known", map[string]string{"A": "1"}))
}

func TestStore_LoadMissingReturnsEmpty(t *testing.T) {
	store := secrets.NewStore(secrets.WithDir(t.TempDir()))

	got, err := store.Load("never-set")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	store := secrets.NewStore(secrets.WithDir(dir))

	require.NoError(t, store.Set("comp", map[string]string{"A": "1"}))

	info, err := os.Stat(filepath.Join(dir, "comp.secrets.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_ExternalEditInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	store := secrets.NewStore(secrets.WithDir(dir))

	require.NoError(t, store.Set("comp", map[string]string{"A": "1"}))
	_, err := store.Load("comp") // Warm the cache
	require.NoError(t, err)

	// Edit the file behind the store's back with a newer mtime.
	path := filepath.Join(dir, "comp.secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("A: edited\n"), 0o600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	got, err := store.Load("comp")
	require.NoError(t, err)
	assert.Equal(t, "edited", got["A"])
}

func TestStore_DeleteLastKeyRemovesFile(t *testing.T) {
	dir := t.TempDir()
	store := secrets.NewStore(secrets.WithDir(dir))

	require.NoError(t, store.Set("comp", map[string]string{"A": "1"}))
	require.NoError(t, store.Delete("comp", []string{"A"}))

	_, err := os.Stat(filepath.Join(dir, "comp.secrets.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	store := secrets.NewStore(secrets.WithDir(t.TempDir()))
	require.NoError(t, store.Set("comp", map[string]string{"A": "1"}))

	first, err := store.Load("comp")
	require.NoError(t, err)
	first["A"] = "mutated"

	second, err := store.Load("comp")
	require.NoError(t, err)
	assert.Equal(t, "1", second["A"])
}

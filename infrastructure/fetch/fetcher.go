// Package fetch resolves component source references into local artifacts.
// Supported schemes: bare local paths and file:// URLs, https:// URLs, and
// oci:// registry references.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	domainerrors "github.com/yoktobit/wassette/domain/errors"
	"github.com/yoktobit/wassette/domain/ports"
)

// Media types accepted as the Wasm layer of an OCI artifact.
var wasmLayerMediaTypes = map[string]bool{
	"application/wasm":                             true,
	"application/vnd.wasm.content.layer.v1+wasm":   true,
	"application/vnd.wasm.component.layer.v0+wasm": true,
}

// fetcherConfig holds configuration for the Fetcher.
type fetcherConfig struct {
	stagingDir string
	httpClient *http.Client
	plainHTTP  bool
	logger     *slog.Logger
}

func defaultFetcherConfig() fetcherConfig {
	return fetcherConfig{
		stagingDir: os.TempDir(),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
}

// FetcherOption configures a Fetcher instance.
type FetcherOption func(*fetcherConfig)

// WithStagingDir sets the scratch directory for downloaded artifacts.
func WithStagingDir(dir string) FetcherOption {
	return func(c *fetcherConfig) {
		c.stagingDir = dir
	}
}

// WithHTTPClient sets the client for https:// downloads.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(c *fetcherConfig) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPlainHTTP allows http registries. For tests only.
func WithPlainHTTP(enabled bool) FetcherOption {
	return func(c *fetcherConfig) {
		c.plainHTTP = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(c *fetcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Fetcher resolves component sources. Registry pulls authenticate through
// the credential resolver; anonymous pulls proceed when no credentials
// resolve.
type Fetcher struct {
	config      fetcherConfig
	credentials ports.CredentialResolver
}

var _ ports.ModuleFetcher = (*Fetcher)(nil)

// NewFetcher creates a Fetcher using the given credential resolver.
func NewFetcher(credentials ports.CredentialResolver, opts ...FetcherOption) *Fetcher {
	cfg := defaultFetcherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Fetcher{config: cfg, credentials: credentials}
}

// Fetch resolves a source reference into a local artifact.
func (f *Fetcher) Fetch(ctx context.Context, source string) (*ports.FetchedModule, error) {
	switch {
	case strings.HasPrefix(source, "oci://"):
		return f.fetchOCI(ctx, strings.TrimPrefix(source, "oci://"))
	case strings.HasPrefix(source, "https://"), strings.HasPrefix(source, "http://"):
		return f.fetchHTTP(ctx, source)
	case strings.HasPrefix(source, "file://"):
		return f.fetchLocal(strings.TrimPrefix(source, "file://"))
	default:
		return f.fetchLocal(source)
	}
}

func (f *Fetcher) fetchLocal(path string) (*ports.FetchedModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: path, Stage: "fetch", Err: err}
	}
	if info.IsDir() {
		return nil, &domainerrors.LoadFailureError{
			Source: path,
			Stage:  "fetch",
			Err:    fmt.Errorf("source is a directory"),
		}
	}
	return &ports.FetchedModule{
		ComponentID: ComponentID(path),
		Path:        path,
		Temporary:   false,
	}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (*ports.FetchedModule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: url, Stage: "fetch", Err: err}
	}
	resp, err := f.config.httpClient.Do(req)
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: url, Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domainerrors.LoadFailureError{
			Source: url,
			Stage:  "fetch",
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return f.stage(url, resp.Body)
}

func (f *Fetcher) fetchOCI(ctx context.Context, reference string) (*ports.FetchedModule, error) {
	repo, err := remote.NewRepository(reference)
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: "oci://" + reference, Stage: "fetch", Err: err}
	}
	repo.PlainHTTP = f.config.plainHTTP
	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: f.credential,
	}

	tag := repo.Reference.Reference
	if tag == "" {
		tag = "latest"
	}

	store := memory.New()
	desc, err := oras.Copy(ctx, repo, tag, store, tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: "oci://" + reference, Stage: "fetch", Err: err}
	}

	wasm, err := extractWasmLayer(ctx, store, desc)
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: "oci://" + reference, Stage: "fetch", Err: err}
	}
	return f.stageBytes("oci://"+reference, wasm)
}

// credential adapts the resolver chain to the registry client. A chain
// with no credentials degrades to an anonymous pull.
func (f *Fetcher) credential(ctx context.Context, host string) (auth.Credential, error) {
	entry, err := f.credentials.Resolve(ctx, host)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNoCredentials) {
			return auth.EmptyCredential, nil
		}
		return auth.EmptyCredential, err
	}
	return auth.Credential{Username: entry.Username, Password: entry.Secret}, nil
}

func extractWasmLayer(ctx context.Context, store *memory.Store, desc ocispec.Descriptor) ([]byte, error) {
	manifestBytes, err := content.FetchAll(ctx, store, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	for _, layer := range manifest.Layers {
		if wasmLayerMediaTypes[layer.MediaType] {
			data, err := content.FetchAll(ctx, store, layer)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch layer: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("no wasm layer in artifact")
}

func (f *Fetcher) stage(source string, r io.Reader) (*ports.FetchedModule, error) {
	tmp, err := os.CreateTemp(f.config.stagingDir, "wassette-fetch-*.wasm")
	if err != nil {
		return nil, &domainerrors.LoadFailureError{Source: source, Stage: "fetch", Err: err}
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, &domainerrors.LoadFailureError{Source: source, Stage: "fetch", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, &domainerrors.LoadFailureError{Source: source, Stage: "fetch", Err: err}
	}
	return &ports.FetchedModule{
		ComponentID: ComponentID(source),
		Path:        tmp.Name(),
		Temporary:   true,
	}, nil
}

func (f *Fetcher) stageBytes(source string, data []byte) (*ports.FetchedModule, error) {
	return f.stage(source, bytes.NewReader(data))
}

// ComponentID derives a deterministic identifier from a source reference.
// Local paths use the file stem, so an artifact installed under
// <component-dir>/<id>.wasm restores under the identifier it was
// installed as. Remote references keep the full reference with the
// scheme stripped and characters unsafe in filenames replaced, so the
// identifier can name policy, secret, and artifact files directly.
func ComponentID(source string) string {
	id := source
	remote := false
	for _, scheme := range []string{"oci://", "https://", "http://"} {
		if rest, ok := strings.CutPrefix(id, scheme); ok {
			id = rest
			remote = true
			break
		}
	}
	if !remote {
		id = strings.TrimPrefix(id, "file://")
		id = filepath.Base(filepath.Clean(id))
	}
	id = strings.TrimSuffix(id, ".wasm")
	id = strings.Trim(id, "/")

	var b strings.Builder
	for _, r := range id {
		switch r {
		case '/', ':', '@', '\\', ' ':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	return strings.Trim(out, "-.")
}

// wassette hosts WebAssembly components under deny-by-default capability
// policies. It restores previously installed components on startup, loads
// any sources given on the command line, and serves them until terminated.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/yoktobit/wassette/domain/entities"
	"github.com/yoktobit/wassette/domain/ports"
	"github.com/yoktobit/wassette/host"
	"github.com/yoktobit/wassette/host/registry"
	"github.com/yoktobit/wassette/infrastructure/credentials"
	"github.com/yoktobit/wassette/infrastructure/fetch"
	"github.com/yoktobit/wassette/infrastructure/policystore"
	"github.com/yoktobit/wassette/infrastructure/secrets"
	"github.com/yoktobit/wassette/infrastructure/wazero"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		stateDir          string
		logLevel          string
		credentialHelper  string
		registryAuth      []string
		inheritEnv        []string
		maxLoads          int
		printGrantSchemas bool
	)

	flagSet := pflag.NewFlagSet("wassette", pflag.ContinueOnError)
	flagSet.StringVar(&stateDir, "state-dir", defaultStateDir(), "directory for components, policies, and secrets")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&credentialHelper, "credential-helper", "", "docker credential helper name for registry pulls")
	flagSet.StringSliceVar(&registryAuth, "registry-auth", nil, "registry login as host=user:password, repeatable")
	flagSet.StringSliceVar(&inheritEnv, "inherit-env", nil, "host environment variables that value-less env grants may inherit")
	flagSet.IntVar(&maxLoads, "max-concurrent-loads", 4, "parallelism for restoring installed components")
	flagSet.BoolVar(&printGrantSchemas, "print-grant-schemas", false, "print the JSON schemas for grant requests and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if printGrantSchemas {
		return printSchemas(os.Stdout)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logins, err := parseRegistryAuth(registryAuth)
	if err != nil {
		return err
	}

	manager, err := buildManager(stateDir, logger, credentialHelper, logins, inheritEnv, maxLoads)
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())

	if err := manager.LoadExisting(ctx); err != nil {
		return fmt.Errorf("failed to restore components: %w", err)
	}
	for _, source := range flagSet.Args() {
		outcome, err := manager.Load(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", source, err)
		}
		logger.Info("loaded", "component", outcome.ComponentID, "exports", outcome.Exports)
	}

	logger.Info("wassette running",
		"components", len(manager.List()), "state_dir", stateDir)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func buildManager(stateDir string, logger *slog.Logger, credentialHelper string, logins map[string]entities.RegistryCredential, inheritEnv []string, maxLoads int) (*host.Manager, error) {
	policies := policystore.NewFileStore(
		policystore.WithDir(filepath.Join(stateDir, "components")),
	)

	var strategies []ports.CredentialStrategy
	if len(logins) > 0 {
		strategies = append(strategies, credentials.NewConfigStrategy(logins))
	}
	if credentialHelper != "" {
		strategies = append(strategies, credentials.NewHelperStrategy(credentialHelper))
	}
	resolver := credentials.NewChainResolver(strategies, credentials.WithLogger(logger))

	fetcher := fetch.NewFetcher(resolver,
		fetch.WithStagingDir(filepath.Join(stateDir, "components", "downloads")),
		fetch.WithLogger(logger),
	)

	sandbox := wazero.NewSandbox(wazero.WithLogger(logger))

	var manager *host.Manager
	secretStore := secrets.NewStore(
		secrets.WithDir(filepath.Join(stateDir, "secrets")),
		secrets.WithComponentChecker(func(id string) bool { return manager.Known(id) }),
	)

	manager, err := host.NewManager(
		policies,
		secretStore,
		fetcher,
		sandbox,
		registry.NewRegistry(),
		host.WithComponentDir(filepath.Join(stateDir, "components")),
		host.WithLogger(logger),
		host.WithInheritedEnvironment(inheritedEnvironment(inheritEnv)),
		host.WithMaxConcurrentLoads(maxLoads),
	)
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// parseRegistryAuth turns repeated host=user:password flags into the
// configured login map for the credential chain.
func parseRegistryAuth(specs []string) (map[string]entities.RegistryCredential, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	logins := make(map[string]entities.RegistryCredential, len(specs))
	for _, spec := range specs {
		registryHost, login, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --registry-auth %q (expected host=user:password)", spec)
		}
		user, password, ok := strings.Cut(login, ":")
		if !ok || registryHost == "" || user == "" {
			return nil, fmt.Errorf("invalid --registry-auth %q (expected host=user:password)", spec)
		}
		logins[registryHost] = entities.RegistryCredential{Username: user, Password: password}
	}
	return logins, nil
}

// printSchemas writes the generated grant request schemas, one JSON object
// per line keyed by grant kind.
func printSchemas(w io.Writer) error {
	schemas, err := host.NewSchemaRegistry()
	if err != nil {
		return err
	}
	kinds := schemas.Kinds()
	sort.Strings(kinds)
	for _, kind := range kinds {
		schema, _ := schemas.Get(kind)
		if _, err := fmt.Fprintf(w, "%s\t%s\n", kind, schema); err != nil {
			return err
		}
	}
	return nil
}

// inheritedEnvironment narrows the process environment to the explicitly
// named variables. Nothing is inheritable unless listed.
func inheritedEnvironment(names []string) map[string]string {
	env := make(map[string]string, len(names))
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok {
			env[name] = value
		}
	}
	return env
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wassette"
	}
	return filepath.Join(home, ".wassette")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

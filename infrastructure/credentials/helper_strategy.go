package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/yoktobit/wassette/domain/entities"
	"github.com/yoktobit/wassette/domain/ports"
)

// HelperStrategy resolves credentials by invoking a Docker credential
// helper process (docker-credential-<name> get) with the registry host on
// stdin. The helper replies with a JSON document carrying Username and
// Secret.
type HelperStrategy struct {
	helper string
	// command builds the helper invocation. Overridable for tests.
	command func(ctx context.Context, helper string) *exec.Cmd
}

var _ ports.CredentialStrategy = (*HelperStrategy)(nil)

// NewHelperStrategy creates a strategy for the named helper, e.g.
// "osxkeychain" invokes docker-credential-osxkeychain.
func NewHelperStrategy(helper string) *HelperStrategy {
	return &HelperStrategy{
		helper: helper,
		command: func(ctx context.Context, helper string) *exec.Cmd {
			return exec.CommandContext(ctx, "docker-credential-"+helper, "get")
		},
	}
}

func (s *HelperStrategy) Name() string { return "helper:" + s.helper }

func (s *HelperStrategy) Resolve(ctx context.Context, registryHost string) (*entities.CredentialEntry, bool, error) {
	cmd := s.command(ctx, s.helper)
	cmd.Stdin = strings.NewReader(registryHost)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Helpers report an unknown server URL as a normal outcome, not a
		// failure of the helper itself.
		if strings.Contains(stdout.String(), "credentials not found") ||
			strings.Contains(stderr.String(), "credentials not found") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("credential helper %s: %w: %s", s.helper, err, strings.TrimSpace(stderr.String()))
	}

	var entry entities.CredentialEntry
	if err := json.Unmarshal(stdout.Bytes(), &entry); err != nil {
		return nil, false, fmt.Errorf("credential helper %s returned malformed output: %w", s.helper, err)
	}
	if entry.Username == "" && entry.Secret == "" {
		return nil, false, nil
	}
	return &entry, true, nil
}

package ports

import (
	"context"

	"github.com/yoktobit/wassette/domain/entities"
)

// CredentialResolver resolves registry authentication for remote fetches.
// Resolution returns domainerrors.ErrNoCredentials when no strategy in the
// chain produced a credential.
type CredentialResolver interface {
	Resolve(ctx context.Context, registryHost string) (*entities.CredentialEntry, error)
}

// CredentialStrategy is one step of an ordered resolution chain. A strategy
// either resolves, declines (nil, false, nil), or fails; failures fall
// through to the next step.
type CredentialStrategy interface {
	Name() string
	Resolve(ctx context.Context, registryHost string) (*entities.CredentialEntry, bool, error)
}

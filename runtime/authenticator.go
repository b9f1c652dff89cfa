package runtime

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
)

// Authenticator validates the credential presented when a stream opens.
// It has no side effects: admission is left to the Registry.
type Authenticator struct {
	verifier contract.ITokenVerifier
	users    contract.IUserLookup
}

func NewAuthenticator(verifier contract.ITokenVerifier, users contract.IUserLookup) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate accepts "Bearer <token>" or a bare token.
func (a *Authenticator) Authenticate(ctx context.Context, rawCredential string) (domain.Identity, error) {
	token := auth.BearerToken(rawCredential)
	if token == "" {
		return domain.Identity{}, errors.ErrMissingToken
	}

	identity, err := a.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidToken) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if identity.UserID == "" {
		return domain.Identity{}, errors.ErrInvalidToken
	}

	exists, err := a.users.UserExists(ctx, identity.UserID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("looking up user %s: %w", identity.UserID, err)
	}
	if !exists {
		return domain.Identity{}, errors.ErrUnknownUser
	}
	return identity, nil
}

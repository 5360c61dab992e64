package auth

import (
	"context"
	"fmt"

	"github.com/dkeye/chatrelay/internal/domain"
)

type UserLookup interface {
	Exists(ctx context.Context, id domain.Identity) (bool, error)
}

// Verifier implements core.AuthVerifier: a token is accepted when it is
// valid and its subject is still a registered user.
type Verifier struct {
	Tokens *Tokens
	Users  UserLookup
}

func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := v.Tokens.Parse(token)
	if err != nil {
		return "", err
	}
	id := domain.Identity(claims.Subject)
	ok, err := v.Users.Exists(ctx, id)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: unknown user %s", ErrInvalidToken, id)
	}
	return id, nil
}

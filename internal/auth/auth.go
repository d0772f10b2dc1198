// Package auth admits connections: it verifies the credential presented at
// handshake time and resolves it to an active principal before any presence
// or room state is touched.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"carelink-ws-server/internal/types"
)

var (
	// ErrMissingCredential - no token was presented with the handshake.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidToken - signature or expiry verification failed, or the
	// subject does not resolve to a known principal.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInactiveAccount - the principal exists but is not active.
	ErrInactiveAccount = errors.New("inactive account")
)

// PrincipalFinder is the slice of the store the authenticator needs.
type PrincipalFinder interface {
	FindPrincipal(ctx context.Context, subject string) (*types.Principal, error)
}

// Authenticator validates handshake credentials against the token manager
// and the persistence layer.
type Authenticator struct {
	tokens *TokenManager
	store  PrincipalFinder
	logger *zap.Logger
}

func NewAuthenticator(tokens *TokenManager, store PrincipalFinder, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		store:  store,
		logger: logger,
	}
}

// Authenticate resolves the request credential to an active principal.
// A failure here terminates the connection attempt; the connection never
// reaches presence state.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (types.Principal, error) {
	tokenString, ok := ExtractToken(r)
	if !ok {
		return types.Principal{}, ErrMissingCredential
	}

	claims, err := a.tokens.Verify(tokenString)
	if err != nil {
		return types.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal, err := a.store.FindPrincipal(ctx, claims.Subject)
	if err != nil {
		return types.Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	if principal == nil {
		a.logger.Warn("token subject unknown", zap.String("subject", claims.Subject))
		return types.Principal{}, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	if principal.Status != types.StatusActive {
		return types.Principal{}, ErrInactiveAccount
	}

	return *principal, nil
}

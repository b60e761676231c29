package out

import (
	"context"
	"errors"

	"mailbrief/core/domain"

	"golang.org/x/oauth2"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps OAuth sessions keyed by state.
type SessionStore interface {
	// Create reserves state before redirecting to the consent screen.
	Create(ctx context.Context, state string) (*domain.Session, error)
	// Activate attaches credentials to a reserved state.
	// Unknown or expired state returns ErrSessionNotFound.
	Activate(ctx context.Context, state string, token *oauth2.Token) error
	// UpdateToken swaps in a refreshed token and keeps the session expiry.
	UpdateToken(ctx context.Context, state string, token *oauth2.Token) error
	// Lookup returns ErrSessionNotFound for unknown or expired state.
	Lookup(ctx context.Context, state string) (*domain.Session, error)
	Expire(ctx context.Context, state string) error
}

// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"

	"mailbrief/core/domain"

	"golang.org/x/oauth2"
)

// =============================================================================
// Mailbox Gateway (Gmail, IMAP/SMTP)
// =============================================================================

// MailboxGateway is the mailbox as seen by the triage core.
// A gateway is bound to one account's credentials.
type MailboxGateway interface {
	ListUnread(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, id string) (*domain.InboxMessage, error)
	MarkRead(ctx context.Context, id string) error
	MarkReadBatch(ctx context.Context, ids []string) error
	Trash(ctx context.Context, id string) error
	Send(ctx context.Context, to, subject, body string) error
}

// MailboxFactory opens a gateway for a set of credentials.
// Providers that authenticate with static credentials ignore token.
type MailboxFactory interface {
	Open(ctx context.Context, token *oauth2.Token) (MailboxGateway, error)
	Provider() string
}

type tokenRefreshKey struct{}

// WithTokenRefresh returns a context that asks token-bound mailboxes opened
// with it to report refreshed tokens to fn.
func WithTokenRefresh(ctx context.Context, fn func(*oauth2.Token)) context.Context {
	return context.WithValue(ctx, tokenRefreshKey{}, fn)
}

// TokenRefreshFrom returns the handler set by WithTokenRefresh, or nil.
func TokenRefreshFrom(ctx context.Context) func(*oauth2.Token) {
	fn, _ := ctx.Value(tokenRefreshKey{}).(func(*oauth2.Token))
	return fn
}

// OAuthProvider drives the consent flow for providers that need one.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// ProviderErrorCodeOf extracts the code from an error chain, or "".
func ProviderErrorCodeOf(err error) ProviderErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

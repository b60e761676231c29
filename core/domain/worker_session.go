package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// Session is keyed by the OAuth state handed out at login.
// Token stays nil until the consent callback completes.
type Session struct {
	State     string        `json:"state"`
	Token     *oauth2.Token `json:"token,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Authorized reports whether the session holds credentials and is still live.
func (s *Session) Authorized(now time.Time) bool {
	return s != nil && s.Token != nil && !s.Expired(now)
}

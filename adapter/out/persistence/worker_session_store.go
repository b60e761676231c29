// Package persistence provides storage adapters implementing outbound ports.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
	"mailbrief/pkg/cache"
	"mailbrief/pkg/crypto"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const DefaultSessionTTL = 24 * time.Hour

// SessionStore implements out.SessionStore over a cache.Cache. Sessions are
// JSON documents, sealed with enc when it is set, so OAuth tokens never sit
// in Redis in the clear.
type SessionStore struct {
	cache cache.Cache
	enc   *crypto.Encryptor
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionStore creates a store; enc may be nil to store plaintext.
func NewSessionStore(c cache.Cache, enc *crypto.Encryptor, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		cache: c,
		enc:   enc,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *SessionStore) Create(ctx context.Context, state string) (*domain.Session, error) {
	if state == "" {
		return nil, fmt.Errorf("%w: empty state", ErrInvalidInput)
	}

	now := s.now().UTC()
	sess := &domain.Session{
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Activate attaches token and restarts the session lifetime.
func (s *SessionStore) Activate(ctx context.Context, state string, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidInput)
	}

	sess, err := s.Lookup(ctx, state)
	if err != nil {
		return err
	}

	sess.Token = token
	sess.ExpiresAt = s.now().UTC().Add(s.ttl)
	return s.save(ctx, sess)
}

func (s *SessionStore) Lookup(ctx context.Context, state string) (*domain.Session, error) {
	if state == "" {
		return nil, out.ErrSessionNotFound
	}

	raw, err := s.cache.Get(ctx, state)
	if errors.Is(err, cache.ErrMiss) {
		return nil, out.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		_ = s.cache.Delete(ctx, state)
		return nil, out.ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionStore) Expire(ctx context.Context, state string) error {
	if err := s.cache.Delete(ctx, state); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// UpdateToken replaces the token of a live session without extending it.
// Used when a refresh yields a new access token mid-session.
func (s *SessionStore) UpdateToken(ctx context.Context, state string, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidInput)
	}

	sess, err := s.Lookup(ctx, state)
	if err != nil {
		return err
	}
	sess.Token = token
	return s.save(ctx, sess)
}

func (s *SessionStore) save(ctx context.Context, sess *domain.Session) error {
	raw, err := s.encode(sess)
	if err != nil {
		return err
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return out.ErrSessionNotFound
	}
	if err := s.cache.Set(ctx, sess.State, raw, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) encode(sess *domain.Session) (string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if s.enc == nil {
		return string(data), nil
	}
	return s.enc.Encrypt(string(data))
}

func (s *SessionStore) decode(raw string) (*domain.Session, error) {
	data := raw
	if s.enc != nil {
		plain, err := s.enc.Decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		data = plain
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &sess, nil
}

var _ out.SessionStore = (*SessionStore)(nil)

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mailbrief/core/port/out"
	"mailbrief/pkg/logger"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// DefaultTokenFile is where CLI credentials are kept between runs.
const DefaultTokenFile = "token.json"

const cliState = "mailbrief-cli"

var ErrNoToken = errors.New("no stored token")

// TokenFile persists an OAuth token as JSON.
type TokenFile struct {
	path string
	mu   sync.Mutex
}

func NewTokenFile(path string) *TokenFile {
	if path == "" {
		path = DefaultTokenFile
	}
	return &TokenFile{path: path}
}

func (f *TokenFile) Path() string { return f.path }

// Load reads the stored token. A missing file is ErrNoToken.
func (f *TokenFile) Load() (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}

// Save writes tok with owner-only permissions.
func (f *TokenFile) Save(tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(f.path, data, 0o600)
}

// OnRefresh saves refreshed tokens, logging failures.
func (f *TokenFile) OnRefresh(tok *oauth2.Token) {
	if err := f.Save(tok); err != nil {
		logger.WithError(err).Warn("[CLI] failed to save refreshed token to %s", f.path)
	}
}

// LoadOrAuthorize returns the stored token when it is usable, otherwise runs
// the consent flow on the terminal and stores the result.
func LoadOrAuthorize(ctx context.Context, file *TokenFile, auth out.OAuthProvider, term *Terminal) (*oauth2.Token, error) {
	tok, err := file.Load()
	switch {
	case err == nil && (tok.Valid() || tok.RefreshToken != ""):
		return tok, nil
	case err != nil && !errors.Is(err, ErrNoToken):
		logger.WithError(err).Warn("[CLI] stored token unreadable, re-authorizing")
	}

	tok, err = Authorize(ctx, auth, term)
	if err != nil {
		return nil, err
	}
	if err := file.Save(tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// Authorize prints the consent URL and exchanges the code the user pastes.
// The pasted value may be the bare code or the full redirect URL.
func Authorize(ctx context.Context, auth out.OAuthProvider, term *Terminal) (*oauth2.Token, error) {
	term.printf("Open this URL in your browser and grant access:\n\n%s\n\n", auth.AuthURL(cliState))
	term.printf("Paste the authorization code (or the redirected URL): ")
	code := extractCode(term.readLine())
	if code == "" {
		return nil, errors.New("no authorization code entered")
	}
	return auth.Exchange(ctx, code)
}

func extractCode(input string) string {
	if !strings.Contains(input, "code=") {
		return input
	}
	raw := input
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	return values.Get("code")
}

package http

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"mailbrief/core/port/out"
	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
)

// DefaultFrontendURL is where the callback sends the browser when no
// frontend is configured.
const DefaultFrontendURL = "http://localhost:3000"

// OAuthHandler runs the consent flow. Sessions are keyed by the OAuth state.
type OAuthHandler struct {
	auth        out.OAuthProvider
	sessions    out.SessionStore
	frontendURL string
}

// NewOAuthHandler creates the handler. A nil auth means the mailbox uses
// static credentials; /login then activates the session immediately.
func NewOAuthHandler(auth out.OAuthProvider, sessions out.SessionStore, frontendURL string) *OAuthHandler {
	if frontendURL == "" {
		frontendURL = DefaultFrontendURL
	}
	return &OAuthHandler{
		auth:        auth,
		sessions:    sessions,
		frontendURL: frontendURL,
	}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	app.Get("/login", h.Login)
	app.Get("/callback", h.Callback)
	app.Post("/logout", h.Logout)
}

// generateSecureState returns 32 random bytes hex encoded.
func generateSecureState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure state: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func (h *OAuthHandler) Login(c *fiber.Ctx) error {
	ctx := c.UserContext()

	state, err := generateSecureState()
	if err != nil {
		return apperr.InternalWithError(err)
	}
	if _, err := h.sessions.Create(ctx, state); err != nil {
		return apperr.InternalWithError(err)
	}

	if h.auth == nil {
		// Static credentials: nothing to consent to.
		if err := h.sessions.Activate(ctx, state, &oauth2.Token{TokenType: "static"}); err != nil {
			return apperr.InternalWithError(err)
		}
		return c.Redirect(h.loggedInURL(state), fiber.StatusFound)
	}

	logger.WithContext(ctx).Info("[OAuth Login] state reserved, redirecting to consent")
	return c.Redirect(h.auth.AuthURL(state), fiber.StatusFound)
}

func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	ctx := c.UserContext()
	state := c.Query("state")

	if state == "" || h.auth == nil {
		return c.Status(fiber.StatusBadRequest).SendString("Error: OAuth state invalid or missing")
	}
	if _, err := h.sessions.Lookup(ctx, state); err != nil {
		if errors.Is(err, out.ErrSessionNotFound) {
			return c.Status(fiber.StatusBadRequest).SendString("Error: OAuth state invalid or missing")
		}
		return apperr.InternalWithError(err)
	}

	if reason := c.Query("error"); reason != "" {
		logger.WithContext(ctx).Warn("[OAuth Callback] consent denied: %s", reason)
		_ = h.sessions.Expire(ctx, state)
		return response.Error(c, fiber.StatusBadRequest, "OAuth consent failed: "+reason)
	}

	code := c.Query("code")
	if code == "" {
		return response.Error(c, fiber.StatusBadRequest, "Missing authorization code")
	}

	token, err := h.auth.Exchange(ctx, code)
	if err != nil {
		return apperr.OAuthFailed("google", err)
	}
	if err := h.sessions.Activate(ctx, state, token); err != nil {
		if errors.Is(err, out.ErrSessionNotFound) {
			return c.Status(fiber.StatusBadRequest).SendString("Error: OAuth state invalid or missing")
		}
		return apperr.InternalWithError(err)
	}

	logger.WithContext(ctx).Info("[OAuth Callback] session activated")
	return c.Redirect(h.loggedInURL(state), fiber.StatusFound)
}

func (h *OAuthHandler) Logout(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" {
		return response.Error(c, fiber.StatusBadRequest, "Missing state")
	}
	if err := h.sessions.Expire(c.UserContext(), state); err != nil {
		return apperr.InternalWithError(err)
	}
	return response.Message(c, "Logged out")
}

func (h *OAuthHandler) loggedInURL(state string) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return h.frontendURL + "?logged_in=true&state=" + url.QueryEscape(state)
	}
	q := u.Query()
	q.Set("logged_in", "true")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

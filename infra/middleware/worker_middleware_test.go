package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/ratelimit"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeSessions struct {
	sessions map[string]*domain.Session
	err      error
}

func (f *fakeSessions) Create(ctx context.Context, state string) (*domain.Session, error) {
	s := &domain.Session{State: state}
	f.sessions[state] = s
	return s, nil
}

func (f *fakeSessions) Activate(ctx context.Context, state string, token *oauth2.Token) error {
	s, ok := f.sessions[state]
	if !ok {
		return out.ErrSessionNotFound
	}
	s.Token = token
	return nil
}

func (f *fakeSessions) UpdateToken(ctx context.Context, state string, token *oauth2.Token) error {
	return f.Activate(ctx, state, token)
}

func (f *fakeSessions) Lookup(ctx context.Context, state string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[state]
	if !ok {
		return nil, out.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Expire(ctx context.Context, state string) error {
	delete(f.sessions, state)
	return nil
}

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID(), HTTPMetrics(), RequestLogger(), Recover())
	return app
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&m))
	return m
}

func TestErrorHandler_AppError(t *testing.T) {
	app := newTestApp()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return apperr.MissingField("id")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.Equal(t, false, body["success"])
	detail := body["error"].(map[string]any)
	assert.Equal(t, apperr.CodeMissingField, detail["code"])
	assert.NotEmpty(t, body["request_id"])
}

func TestErrorHandler_WrappedUpstream(t *testing.T) {
	app := newTestApp()
	app.Get("/up", func(c *fiber.Ctx) error {
		return apperr.Upstream("mailbox", errors.New("dial tcp: refused"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/up", nil))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
	detail := decode(t, resp.Body)["error"].(map[string]any)
	assert.Equal(t, apperr.CodeUpstream, detail["code"])
}

func TestErrorHandler_FiberAndPlainErrors(t *testing.T) {
	app := newTestApp()
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("something odd")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, apperr.CodeNotFound, decode(t, resp.Body)["error"].(map[string]any)["code"])

	resp, err = app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, "An unexpected error occurred", body["error"].(map[string]any)["message"])
}

func TestRecover(t *testing.T) {
	app := newTestApp()
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("kaboom")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, apperr.CodeInternalError, decode(t, resp.Body)["error"].(map[string]any)["code"])
}

func TestRequestID(t *testing.T) {
	app := newTestApp()
	var fromCtx any
	app.Get("/id", func(c *fiber.Ctx) error {
		fromCtx = c.UserContext().Value(logger.RequestIDKey)
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/id", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "req-123", fromCtx)

	resp, err = app.Test(httptest.NewRequest("GET", "/id", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
}

func TestRequireSession(t *testing.T) {
	store := &fakeSessions{sessions: map[string]*domain.Session{
		"pending": {State: "pending"},
		"active":  {State: "active", Token: &oauth2.Token{AccessToken: "tok"}},
		"stale":   {State: "stale", Token: &oauth2.Token{AccessToken: "tok"}, ExpiresAt: time.Now().Add(-time.Minute)},
	}}

	app := newTestApp()
	app.Get("/guarded", RequireSession(store), func(c *fiber.Ctx) error {
		sess, ok := SessionFrom(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(sess.Token.AccessToken)
	})

	tests := []struct {
		query  string
		status int
	}{
		{"", 401},
		{"?state=unknown", 401},
		{"?state=pending", 401},
		{"?state=stale", 401},
		{"?state=active", 200},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", "/guarded"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == 401 {
				assert.Equal(t, "User not logged in", decode(t, resp.Body)["error"])
			}
		})
	}
}

func TestRequireSession_StoreFailure(t *testing.T) {
	store := &fakeSessions{sessions: map[string]*domain.Session{}, err: errors.New("redis down")}
	app := newTestApp()
	app.Get("/guarded", RequireSession(store), func(c *fiber.Ctx) error { return nil })

	resp, err := app.Test(httptest.NewRequest("GET", "/guarded?state=x", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithStore(ratelimit.NewMemoryStore(func() time.Time { return now }), 2, time.Minute)

	app := newTestApp()
	app.Get("/limited", rl.Handler(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	hit := func(query string) int {
		resp, err := app.Test(httptest.NewRequest("GET", "/limited"+query, nil))
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, 200, hit("?state=a"))
	assert.Equal(t, 200, hit("?state=a"))
	assert.Equal(t, 429, hit("?state=a"))
	assert.Equal(t, 200, hit("?state=b"))
	assert.Equal(t, 200, hit(""), "no state falls back to client IP")

	now = now.Add(time.Minute)
	assert.Equal(t, 200, hit("?state=a"))
}

func TestRequireJSON(t *testing.T) {
	app := newTestApp()
	app.Post("/in", RequireJSON(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("POST", "/in", strings.NewReader("id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 415, resp.StatusCode)

	req = httptest.NewRequest("POST", "/in", strings.NewReader(`{"id":"1"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

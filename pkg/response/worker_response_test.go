package response

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"mailbrief/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, h fiber.Handler) (int, string) {
	t.Helper()
	app := fiber.New()
	app.Get("/", h)
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		prefix string
		status int
		body   string
	}{
		{"plain error", errors.New("boom"), "", 500, `{"error":"boom"}`},
		{"unauthorized", apperr.Unauthorized("User not logged in"), "", 401, `{"error":"User not logged in"}`},
		{"client error keeps status", apperr.MissingField("id"), "", 400, `{"error":"missing required field: id"}`},
		{"upstream becomes 500", apperr.Upstream("gmail", errors.New("quota exceeded")), "Summarization failed", 500, `{"error":"Summarization failed: quota exceeded"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, func(c *fiber.Ctx) error { return Failure(c, tt.err, tt.prefix) })
			assert.Equal(t, tt.status, status)
			assert.JSONEq(t, tt.body, body)
		})
	}
}

func TestMessage(t *testing.T) {
	status, body := call(t, func(c *fiber.Ctx) error { return Message(c, "Email moved to trash") })
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"success":true,"message":"Email moved to trash"}`, body)
}

package middleware

import (
	"errors"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const sessionLocal = "session"

// RequireSession admits requests whose ?state= names an authorized session.
// The session is stored in Locals for the handler.
func RequireSession(store out.SessionStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := c.Query("state")
		if state == "" {
			return notLoggedIn(c)
		}

		sess, err := store.Lookup(c.UserContext(), state)
		if err != nil {
			if errors.Is(err, out.ErrSessionNotFound) {
				return notLoggedIn(c)
			}
			logger.WithContext(c.UserContext()).WithError(err).Error("[Session] lookup failed")
			return response.Error(c, fiber.StatusInternalServerError, "session lookup failed")
		}
		if !sess.Authorized(time.Now()) {
			return notLoggedIn(c)
		}

		c.Locals(sessionLocal, sess)
		return c.Next()
	}
}

// SessionFrom returns the session RequireSession attached to c.
func SessionFrom(c *fiber.Ctx) (*domain.Session, bool) {
	sess, ok := c.Locals(sessionLocal).(*domain.Session)
	return sess, ok && sess != nil
}

func notLoggedIn(c *fiber.Ctx) error {
	return response.Failure(c, apperr.Unauthorized("User not logged in"), "")
}

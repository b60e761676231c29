package middleware

import (
	"strconv"
	"time"

	"mailbrief/pkg/logger"
	"mailbrief/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// RateLimiter is a fixed-window limiter keyed by session state, or by client
// IP when the request carries no state.
type RateLimiter struct {
	store  ratelimit.Store
	limit  int
	window time.Duration
}

// NewRateLimiter limits in process memory.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithStore(ratelimit.NewMemoryStore(nil), limit, window)
}

// NewRateLimiterWithStore limits against store, e.g. a Redis store shared by
// several instances. A limit <= 0 disables limiting.
func NewRateLimiterWithStore(store ratelimit.Store, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, limit: limit, window: window}
}

func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.limit <= 0 {
			return c.Next()
		}

		key := c.Query("state")
		if key == "" {
			key = "ip:" + c.IP()
		}

		w, err := rl.store.Hit(c.UserContext(), key, rl.window)
		if err != nil {
			// Fail open.
			logger.WithContext(c.UserContext()).WithError(err).Warn("rate limit store unavailable")
			return c.Next()
		}

		remaining := rl.limit - w.Count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(w.ResetIn).Unix(), 10))

		if w.Count > rl.limit {
			retry := int((w.ResetIn + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"retry_after": retry,
			})
		}
		return c.Next()
	}
}

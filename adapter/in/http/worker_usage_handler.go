package http

import (
	"mailbrief/core/port/in"
	"mailbrief/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// UsageHandler records and reports time saved. It needs no session.
type UsageHandler struct {
	usage in.UsageService
}

func NewUsageHandler(usage in.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

func (h *UsageHandler) Register(app fiber.Router) {
	api := app.Group("/api")
	api.Post("/log_usage", h.LogUsage)
	api.Get("/stats", h.Stats)
}

type logUsageRequest struct {
	EmailsProcessed int    `json:"emails_processed"`
	UserEmail       string `json:"user_email"`
}

func (h *UsageHandler) LogUsage(c *fiber.Ctx) error {
	var req logUsageRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.Error(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	entry, err := h.usage.Log(c.UserContext(), req.UserEmail, req.EmailsProcessed)
	if err != nil {
		return response.Failure(c, err, "")
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"time_saved": entry.TimeSavedMinutes,
	})
}

func (h *UsageHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.usage.Stats(c.UserContext())
	if err != nil {
		return response.Failure(c, err, "")
	}
	return response.OK(c, stats)
}

// Package response writes the flat JSON envelopes the web frontend reads:
// {"error": "..."} on failure and {"success": true, "message": "..."} for
// mailbox mutations.
package response

import (
	"errors"

	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// MessageBody is the success envelope for mutations.
type MessageBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OK writes data as-is with status 200.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(data)
}

// Message writes {"success": true, "message": message}.
func Message(c *fiber.Ctx, message string) error {
	return c.JSON(MessageBody{Success: true, Message: message})
}

// Error writes {"error": message} with status.
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorBody{Error: message})
}

// Failure maps err onto the error envelope. Client errors keep their
// status; anything else, upstream failures included, is a 500. prefix, when
// set, is prepended as "prefix: ".
func Failure(c *fiber.Ctx, err error, prefix string) error {
	status := apperr.GetHTTPStatus(err)
	if status < 400 || status >= 500 {
		status = fiber.StatusInternalServerError
	}
	message := err.Error()

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		if appErr.Err != nil {
			message = appErr.Err.Error()
		}
	}

	if status >= 500 {
		logger.WithContext(c.UserContext()).WithError(err).Error("[%s] %s failed", c.Method(), c.Path())
	}
	if prefix != "" {
		message = prefix + ": " + message
	}
	return Error(c, status, message)
}

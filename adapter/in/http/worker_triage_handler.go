package http

import (
	"context"
	"io"
	"strings"

	"mailbrief/core/domain"
	"mailbrief/core/port/in"
	"mailbrief/core/port/out"
	"mailbrief/infra/middleware"
	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
)

const noUnreadSummary = "No unread emails found."

// TriageHandler serves the summarize and action routes for a logged-in session.
type TriageHandler struct {
	triage    in.TriageService
	mailboxes out.MailboxFactory
	sessions  out.SessionStore
}

func NewTriageHandler(triage in.TriageService, mailboxes out.MailboxFactory, sessions out.SessionStore) *TriageHandler {
	return &TriageHandler{
		triage:    triage,
		mailboxes: mailboxes,
		sessions:  sessions,
	}
}

// Register mounts the routes behind guard, which must attach the session.
func (h *TriageHandler) Register(app fiber.Router, guard ...fiber.Handler) {
	app.Get("/summarize", append(guard, h.Summarize)...)

	action := app.Group("/action", guard...)
	action.Post("/trash", h.Trash)
	action.Post("/mark_read", h.MarkRead)
	action.Post("/mark_all_read", h.MarkAllRead)
	action.Post("/reply", h.Reply)
}

type idRequest struct {
	ID string `json:"id"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type summarizeResponse struct {
	Emails        []domain.TriageAction `json:"emails"`
	GlobalSummary string                `json:"global_summary"`
	Skipped       []string              `json:"skipped,omitempty"`
}

// openMailbox binds a gateway to the session's credentials. Refreshed
// tokens are written back to the session.
func (h *TriageHandler) openMailbox(c *fiber.Ctx) (context.Context, out.MailboxGateway, error) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return nil, nil, response.Failure(c, apperr.Unauthorized("User not logged in"), "")
	}

	state := sess.State
	persistCtx := context.WithoutCancel(c.UserContext())
	ctx := out.WithTokenRefresh(c.UserContext(), func(tok *oauth2.Token) {
		if err := h.sessions.UpdateToken(persistCtx, state, tok); err != nil {
			logger.WithError(err).Warn("[Session] failed to persist refreshed token")
		}
	})

	mailbox, err := h.mailboxes.Open(ctx, sess.Token)
	if err != nil {
		return nil, nil, response.Failure(c, err, "")
	}
	return ctx, mailbox, nil
}

// release closes gateways that hold a connection (IMAP).
func release(mailbox out.MailboxGateway) {
	if closer, ok := mailbox.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.WithError(err).Debug("[Mailbox] close failed")
		}
	}
}

func (h *TriageHandler) Summarize(c *fiber.Ctx) error {
	ctx, mailbox, err := h.openMailbox(c)
	if mailbox == nil {
		return err
	}
	defer release(mailbox)

	digest, err := h.triage.Summarize(ctx, mailbox)
	if err != nil {
		return response.Failure(c, err, "Summarization failed")
	}
	if digest.Empty() || digest.Result == nil {
		return c.JSON(fiber.Map{"summary": noUnreadSummary})
	}

	emails := digest.Result.Actions
	if emails == nil {
		emails = []domain.TriageAction{}
	}
	return response.OK(c, summarizeResponse{
		Emails:        emails,
		GlobalSummary: digest.Result.Briefing,
		Skipped:       digest.Skipped,
	})
}

func (h *TriageHandler) Trash(c *fiber.Ctx) error {
	var req idRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		return response.Error(c, fiber.StatusBadRequest, "Missing email ID")
	}

	ctx, mailbox, err := h.openMailbox(c)
	if mailbox == nil {
		return err
	}
	defer release(mailbox)
	if err := h.triage.Trash(ctx, mailbox, req.ID); err != nil {
		return response.Failure(c, err, "")
	}
	return response.Message(c, "Email moved to trash")
}

func (h *TriageHandler) MarkRead(c *fiber.Ctx) error {
	var req idRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		return response.Error(c, fiber.StatusBadRequest, "Missing email ID")
	}

	ctx, mailbox, err := h.openMailbox(c)
	if mailbox == nil {
		return err
	}
	defer release(mailbox)
	if err := h.triage.MarkRead(ctx, mailbox, req.ID); err != nil {
		return response.Failure(c, err, "")
	}
	return response.Message(c, "Email marked as read")
}

func (h *TriageHandler) MarkAllRead(c *fiber.Ctx) error {
	var req idsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return response.Error(c, fiber.StatusBadRequest, "Missing email IDs")
	}

	ctx, mailbox, err := h.openMailbox(c)
	if mailbox == nil {
		return err
	}
	defer release(mailbox)
	if err := h.triage.MarkAllRead(ctx, mailbox, req.IDs); err != nil {
		return response.Failure(c, err, "")
	}
	return response.Message(c, "All emails marked as read")
}

func (h *TriageHandler) Reply(c *fiber.Ctx) error {
	var draft domain.ReplyDraft
	if err := c.BodyParser(&draft); err != nil || strings.TrimSpace(draft.To) == "" || strings.TrimSpace(draft.Body) == "" {
		return response.Error(c, fiber.StatusBadRequest, "Missing 'to' or 'body' fields")
	}

	ctx, mailbox, err := h.openMailbox(c)
	if mailbox == nil {
		return err
	}
	defer release(mailbox)
	if err := h.triage.Reply(ctx, mailbox, draft); err != nil {
		return response.Failure(c, err, "")
	}
	return response.Message(c, "Reply sent successfully")
}

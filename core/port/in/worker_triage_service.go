// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
)

// TriageService is what the HTTP and CLI orchestrators drive.
type TriageService interface {
	// Summarize fetches unread mail and classifies it.
	// An empty inbox yields an empty Digest and no error.
	Summarize(ctx context.Context, mailbox out.MailboxGateway) (*domain.Digest, error)

	MarkRead(ctx context.Context, mailbox out.MailboxGateway, id string) error
	MarkAllRead(ctx context.Context, mailbox out.MailboxGateway, ids []string) error
	Trash(ctx context.Context, mailbox out.MailboxGateway, id string) error
	Reply(ctx context.Context, mailbox out.MailboxGateway, draft domain.ReplyDraft) error

	// SendReply answers action's sender with body, then marks the message
	// read unless alreadyRead. Failures are reported in the outcome.
	SendReply(ctx context.Context, mailbox out.MailboxGateway, action domain.TriageAction, to, body string, alreadyRead bool) domain.ActionOutcome
}

// UsageService records and reports time saved.
type UsageService interface {
	Log(ctx context.Context, userEmail string, emailsProcessed int) (*domain.UsageLog, error)
	Stats(ctx context.Context) (*domain.UsageStats, error)
}

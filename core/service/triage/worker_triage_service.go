package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/in"
	"mailbrief/core/port/out"
	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/metrics"
)

const (
	defaultFetchWorkers = 8
	perMessageTimeout   = 20 * time.Second
	mailboxServiceLabel = "mailbox"
)

// Service orchestrates fetch, classify, log and the follow-up mutations.
type Service struct {
	classifier   *Classifier
	summaryLog   out.SummaryLog
	fetchWorkers int
}

// NewService creates a triage service. summaryLog may be nil.
func NewService(classifier *Classifier, summaryLog out.SummaryLog, fetchWorkers int) *Service {
	if fetchWorkers <= 0 {
		fetchWorkers = defaultFetchWorkers
	}
	return &Service{
		classifier:   classifier,
		summaryLog:   summaryLog,
		fetchWorkers: fetchWorkers,
	}
}

// Summarize fetches every unread message and classifies the batch.
func (s *Service) Summarize(ctx context.Context, mailbox out.MailboxGateway) (*domain.Digest, error) {
	ids, err := mailbox.ListUnread(ctx)
	if err != nil {
		return nil, apperr.Upstream(mailboxServiceLabel, err)
	}
	if len(ids) == 0 {
		return &domain.Digest{}, nil
	}

	msgs, skipped, err := s.fetchAll(ctx, mailbox, ids)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return &domain.Digest{Skipped: skipped}, nil
	}

	result, err := s.classifier.Classify(ctx, msgs)
	if err != nil {
		return nil, err
	}

	if s.summaryLog != nil {
		if _, err := s.summaryLog.Append(ctx, result.Actions); err != nil {
			logger.WithError(err).Warn("[TriageService] failed to append summary log")
		}
	}

	return &domain.Digest{Messages: msgs, Result: result, Skipped: skipped}, nil
}

// fetchAll fetches messages with a bounded worker count, keeping list order.
// Ids that fail are returned as skipped. The call fails when nothing was
// fetched or ctx was cancelled.
func (s *Service) fetchAll(ctx context.Context, mailbox out.MailboxGateway, ids []string) ([]domain.InboxMessage, []string, error) {
	type result struct {
		msg *domain.InboxMessage
		err error
	}

	results := make([]result, len(ids))
	sem := make(chan struct{}, s.fetchWorkers)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = result{err: ctx.Err()}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			msg, err := mailbox.Fetch(msgCtx, id)
			results[idx] = result{msg: msg, err: err}
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	msgs := make([]domain.InboxMessage, 0, len(ids))
	var (
		skipped  []string
		firstErr error
	)
	for i, r := range results {
		if r.err != nil || r.msg == nil {
			if firstErr == nil {
				firstErr = r.err
			}
			skipped = append(skipped, ids[i])
			logger.WithError(r.err).WithField("message_id", ids[i]).Warn("[TriageService] skipping message")
			continue
		}
		msgs = append(msgs, *r.msg)
	}

	if len(msgs) == 0 && firstErr != nil {
		return nil, nil, apperr.Upstream(mailboxServiceLabel, firstErr)
	}
	if len(skipped) > 0 {
		logger.WithContext(ctx).Warn("[TriageService] %d of %d unread messages could not be fetched", len(skipped), len(ids))
	}
	return msgs, skipped, nil
}

func (s *Service) MarkRead(ctx context.Context, mailbox out.MailboxGateway, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.MissingField("id")
	}
	return s.mutate("mark_read", mailbox.MarkRead(ctx, id))
}

func (s *Service) MarkAllRead(ctx context.Context, mailbox out.MailboxGateway, ids []string) error {
	if len(ids) == 0 {
		return apperr.MissingField("ids")
	}
	return s.mutate("mark_all_read", mailbox.MarkReadBatch(ctx, ids))
}

func (s *Service) Trash(ctx context.Context, mailbox out.MailboxGateway, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.MissingField("id")
	}
	return s.mutate("trash", mailbox.Trash(ctx, id))
}

// Reply sends draft. An empty subject becomes "No Subject".
func (s *Service) Reply(ctx context.Context, mailbox out.MailboxGateway, draft domain.ReplyDraft) error {
	if strings.TrimSpace(draft.To) == "" {
		return apperr.MissingField("to")
	}
	if strings.TrimSpace(draft.Body) == "" {
		return apperr.MissingField("body")
	}
	if strings.TrimSpace(draft.Subject) == "" {
		draft.Subject = domain.DefaultReplySubject
	}
	return s.mutate("reply", mailbox.Send(ctx, draft.To, draft.Subject, draft.Body))
}

// SendReply sends the reply for action and marks the message read unless
// alreadyRead. The outcome carries the first failure.
func (s *Service) SendReply(ctx context.Context, mailbox out.MailboxGateway, action domain.TriageAction, to, body string, alreadyRead bool) domain.ActionOutcome {
	outcome := domain.ActionOutcome{ID: action.ID, Action: domain.ActionReply}

	draft := domain.ReplyDraft{To: to, Subject: domain.ReplySubject(action.Subject), Body: body}
	if err := s.Reply(ctx, mailbox, draft); err != nil {
		outcome.Err = err
		return outcome
	}
	if !alreadyRead {
		outcome.Err = s.MarkRead(ctx, mailbox, action.ID)
	}
	return outcome
}

func (s *Service) mutate(operation string, err error) error {
	metrics.MailboxOperations.WithLabelValues(operation, metrics.Result(err)).Inc()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Upstream(mailboxServiceLabel, err)
}

var _ in.TriageService = (*Service)(nil)

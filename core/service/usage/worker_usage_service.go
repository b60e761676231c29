// Package usage accounts for the time the assistant saves.
package usage

import (
	"context"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/in"
	"mailbrief/core/port/out"
	"mailbrief/pkg/apperr"

	"github.com/google/uuid"
)

const (
	DefaultMinutesPerEmail = 2.0
	graphDays              = 7
	dayLayout              = "2006-01-02"
)

type Service struct {
	repo            out.UsageRepository
	minutesPerEmail float64
	now             func() time.Time
}

func NewService(repo out.UsageRepository, minutesPerEmail float64) *Service {
	if minutesPerEmail <= 0 {
		minutesPerEmail = DefaultMinutesPerEmail
	}
	return &Service{
		repo:            repo,
		minutesPerEmail: minutesPerEmail,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Log records a run of emailsProcessed emails. Negative counts are rejected.
func (s *Service) Log(ctx context.Context, userEmail string, emailsProcessed int) (*domain.UsageLog, error) {
	if emailsProcessed < 0 {
		return nil, apperr.BadRequest("emails_processed must not be negative")
	}

	entry := &domain.UsageLog{
		ID:               uuid.NewString(),
		UserEmail:        userEmail,
		EmailsProcessed:  emailsProcessed,
		TimeSavedMinutes: float64(emailsProcessed) * s.minutesPerEmail,
		Date:             s.now(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, apperr.DatabaseError("insert usage log", err)
	}
	return entry, nil
}

// Stats returns totals, minutes saved per UTC day over the last week
// (oldest first, today included) and the productivity score.
func (s *Service) Stats(ctx context.Context) (*domain.UsageStats, error) {
	emails, minutes, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("usage totals", err)
	}

	end := s.now()
	logs, err := s.repo.ListSince(ctx, end.AddDate(0, 0, -graphDays))
	if err != nil {
		return nil, apperr.DatabaseError("list usage logs", err)
	}

	graph := domain.GraphData{
		X: make([]string, graphDays),
		Y: make([]float64, graphDays),
	}
	index := make(map[string]int, graphDays)
	for i := 0; i < graphDays; i++ {
		day := end.AddDate(0, 0, i-(graphDays-1)).Format(dayLayout)
		graph.X[i] = day
		index[day] = i
	}
	for _, l := range logs {
		if i, ok := index[l.Date.UTC().Format(dayLayout)]; ok {
			graph.Y[i] += l.TimeSavedMinutes
		}
	}

	return &domain.UsageStats{
		TotalTimeSavedMinutes: minutes,
		TotalEmailsProcessed:  emails,
		GraphData:             graph,
		ProductivityScore:     int(minutes * 1.5),
	}, nil
}

var _ in.UsageService = (*Service)(nil)

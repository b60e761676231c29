package out

import (
	"context"
	"time"

	"mailbrief/core/domain"
)

// UsageRepository persists usage logs.
type UsageRepository interface {
	Insert(ctx context.Context, log *domain.UsageLog) error
	// Totals returns the sum of emails processed and minutes saved over all logs.
	Totals(ctx context.Context) (emails int, minutes float64, err error)
	// ListSince returns logs dated at or after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]*domain.UsageLog, error)
}

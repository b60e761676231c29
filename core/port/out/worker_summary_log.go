package out

import (
	"context"

	"mailbrief/core/domain"
)

// SummaryLog appends a human-readable record of each triage result.
type SummaryLog interface {
	// Append returns false when the entry was skipped as a duplicate
	// of the most recent one.
	Append(ctx context.Context, actions []domain.TriageAction) (bool, error)
}

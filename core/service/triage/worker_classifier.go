// Package triage turns a batch of unread mail into recommended actions.
package triage

import (
	"context"
	"errors"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
	"mailbrief/pkg/apperr"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/metrics"
)

var ErrEmptyInput = errors.New("triage: no messages to classify")

// Classifier is the response normalizer: prompt, model call, two-stage parse.
type Classifier struct {
	model     out.ModelGateway
	bodyLimit int
}

// NewClassifier creates a classifier. bodyLimit <= 0 uses DefaultBodyLimit.
func NewClassifier(model out.ModelGateway, bodyLimit int) *Classifier {
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}
	return &Classifier{model: model, bodyLimit: bodyLimit}
}

// Classify never fails on malformed model output; only an empty batch or a
// model gateway failure returns an error.
func (c *Classifier) Classify(ctx context.Context, msgs []domain.InboxMessage) (*domain.TriageResult, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyInput
	}

	prompt := BuildPrompt(msgs, c.bodyLimit)

	start := time.Now()
	raw, err := c.model.Generate(ctx, prompt)
	metrics.ModelLatency.WithLabelValues(metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperr.Upstream("model", err)
	}

	payload, outcome := extractPayload(raw)
	metrics.ExtractionOutcomes.WithLabelValues(outcome).Inc()

	var items []any
	briefing := briefingFallback
	if outcome != outcomeNone {
		items, briefing = splitPayload(payload)
	} else {
		logger.WithField("response_len", len(raw)).Warn("[Classifier] model output held no JSON payload")
	}

	actions := normalizeActions(items, buildLookup(msgs))
	for _, a := range actions {
		metrics.ClassificationsTotal.WithLabelValues(a.RecommendedAction.String()).Inc()
	}

	logger.WithFields(map[string]any{
		"messages": len(msgs),
		"actions":  len(actions),
		"outcome":  outcome,
	}).WithDuration(time.Since(start)).Debug("[Classifier] classified batch")

	return &domain.TriageResult{Actions: actions, Briefing: briefing}, nil
}

package triage

import (
	"strings"

	"mailbrief/core/domain"

	"github.com/goccy/go-json"
)

// actionAliases maps spellings seen in model output onto the canonical set.
var actionAliases = map[string]domain.RecommendedAction{
	"mark_as_read": domain.ActionMarkAsRead,
	"mark_read":    domain.ActionMarkAsRead,
	"read":         domain.ActionMarkAsRead,
	"trash":        domain.ActionTrash,
	"delete":       domain.ActionTrash,
	"reply":        domain.ActionReply,
	"respond":      domain.ActionReply,
}

// coerceAction folds any model-supplied value into the canonical vocabulary.
// Anything unrecognized, including the retired "ignore", becomes mark_as_read.
func coerceAction(v any) domain.RecommendedAction {
	s, ok := v.(string)
	if !ok {
		return domain.ActionMarkAsRead
	}
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if a, ok := actionAliases[key]; ok {
		return a
	}
	return domain.ActionMarkAsRead
}

// normalizeActions is the strict stage. Items that are not objects are
// dropped; everything else becomes exactly one TriageAction in model order.
// Body and BodyHTML always come from lookup, never from the model.
func normalizeActions(items []any, lookup map[string]domain.InboxMessage) []domain.TriageAction {
	actions := make([]domain.TriageAction, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		action := domain.TriageAction{
			ID:                stringField(obj, "id"),
			From:              stringField(obj, "From"),
			Subject:           stringField(obj, "Subject"),
			Summary:           stringField(obj, "Summary"),
			RecommendedAction: coerceAction(field(obj, "RecommendedAction")),
		}
		if action.RecommendedAction == domain.ActionReply {
			action.ReplyContent = stringField(obj, "ReplyContent")
		}
		if msg, ok := lookup[action.ID]; ok {
			action.Body = msg.Body
			action.BodyHTML = msg.BodyHTML
		}
		actions = append(actions, action)
	}
	return actions
}

// field looks key up exactly, then case-insensitively.
func field(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// stringField returns strings verbatim and numbers in their literal form.
func stringField(obj map[string]any, key string) string {
	switch v := field(obj, key).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func buildLookup(msgs []domain.InboxMessage) map[string]domain.InboxMessage {
	lookup := make(map[string]domain.InboxMessage, len(msgs))
	for _, m := range msgs {
		lookup[m.ID] = m
	}
	return lookup
}

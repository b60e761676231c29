package triage

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `{"GlobalBriefing":"Two emails.","EmailActions":[{"id":"1","RecommendedAction":"trash"},{"id":"2","RecommendedAction":"reply","ReplyContent":"Sure"}]}`

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"upper tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"bare", "```\n[1]\n```", `[1]`},
		{"other tag", "```javascript\n{}\n```", `{}`},
		{"no fence", "  {}  ", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestExtractPayload_FencedEqualsUnwrapped(t *testing.T) {
	plain, plainOutcome := extractPayload(wellFormed)
	fenced, fencedOutcome := extractPayload("```json\n" + wellFormed + "\n```")

	assert.Equal(t, outcomeDirect, plainOutcome)
	assert.Equal(t, outcomeDirect, fencedOutcome)
	assert.Equal(t, plain, fenced)
}

func TestExtractPayload_Fallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind string
	}{
		{"prose around object", "Here you go:\n" + wellFormed + "\nHope that helps!", "object"},
		{"prose around array", `Result: [{"id":"1"}] done`, "array"},
		{"broken object then array", `{broken [{"id":"1"}]`, "array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, outcome := extractPayload(tt.raw)
			require.Equal(t, outcomeFallback, outcome)
			switch tt.kind {
			case "object":
				assert.IsType(t, map[string]any{}, v)
			case "array":
				assert.IsType(t, []any{}, v)
			}
		})
	}
}

func TestExtractPayload_NoPayload(t *testing.T) {
	tests := []string{
		"Sorry, I can't help.",
		"",
		`{"a":1} and {"b":2}`,
		`{"unterminated": `,
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			v, outcome := extractPayload(raw)
			assert.Nil(t, v)
			assert.Equal(t, outcomeNone, outcome)
		})
	}
}

func TestExtractPayload_NumbersKeepLiteral(t *testing.T) {
	v, _ := extractPayload(`[{"id": 18446744073709551615}]`)
	items := v.([]any)
	id := items[0].(map[string]any)["id"]
	assert.Equal(t, json.Number("18446744073709551615"), id)
}

func TestSplitPayload(t *testing.T) {
	tests := []struct {
		name         string
		payload      any
		wantItems    int
		wantBriefing string
	}{
		{"array", []any{map[string]any{}}, 1, "Check your inbox for details."},
		{"object", map[string]any{"GlobalBriefing": "Hi", "EmailActions": []any{1, 2}}, 2, "Hi"},
		{"object without briefing", map[string]any{"EmailActions": []any{}}, 0, "No summary available."},
		{"object with non-string briefing", map[string]any{"GlobalBriefing": 3}, 0, "No summary available."},
		{"object with non-array actions", map[string]any{"GlobalBriefing": "x", "EmailActions": "nope"}, 0, "x"},
		{"scalar", json.Number("3"), 0, "No summary available."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, briefing := splitPayload(tt.payload)
			assert.Len(t, items, tt.wantItems)
			assert.Equal(t, tt.wantBriefing, briefing)
		})
	}
}

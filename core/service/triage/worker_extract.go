package triage

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

const (
	briefingFallback = "No summary available."
	briefingForList  = "Check your inbox for details."
)

// extraction outcome labels, also used as metric labels
const (
	outcomeDirect   = "direct"
	outcomeFallback = "fallback"
	outcomeNone     = "none"
)

// fenceRe matches a code fence marker with an optional language tag.
var fenceRe = regexp.MustCompile("(?i)```[a-z0-9_+-]*\\s*")

// stripFences removes every code fence marker and trims the result.
func stripFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
}

// extractPayload is the tolerant stage: it turns free-form model text into
// a decoded JSON value without judging its shape.
func extractPayload(raw string) (any, string) {
	if v, ok := decodeJSON(stripFences(raw)); ok {
		return v, outcomeDirect
	}

	for _, candidate := range jsonCandidates(raw) {
		if v, ok := decodeJSON(candidate); ok {
			return v, outcomeFallback
		}
	}
	return nil, outcomeNone
}

// jsonCandidates returns the greedy outermost object span and array span of s,
// the one whose opener appears first leading.
func jsonCandidates(s string) []string {
	obj := greedySpan(s, '{', '}')
	arr := greedySpan(s, '[', ']')

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	var out []string
	if arr != "" && (obj == "" || arrStart < objStart) {
		out = append(out, arr)
		if obj != "" {
			out = append(out, obj)
		}
		return out
	}
	if obj != "" {
		out = append(out, obj)
	}
	if arr != "" {
		out = append(out, arr)
	}
	return out
}

// greedySpan returns s from the first open to the last close, or "".
func greedySpan(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// decodeJSON accepts exactly one JSON value. Numbers decode as json.Number
// so large numeric ids survive verbatim.
func decodeJSON(s string) (any, bool) {
	data := []byte(s)
	if len(data) == 0 || !json.Valid(data) {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// splitPayload maps a decoded payload onto the raw action items and briefing.
func splitPayload(v any) ([]any, string) {
	switch p := v.(type) {
	case []any:
		return p, briefingForList
	case map[string]any:
		items, _ := p["EmailActions"].([]any)
		briefing, ok := p["GlobalBriefing"].(string)
		if !ok {
			briefing = briefingFallback
		}
		return items, briefing
	default:
		return nil, briefingFallback
	}
}

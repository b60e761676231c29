package triage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mailbrief/core/domain"
)

const DefaultBodyLimit = 4000

const promptHeader = `You are an email triage assistant. Analyze the unread emails below.

Return ONE JSON object with exactly these keys:
- "GlobalBriefing": a string of at most 3 sentences summarizing the whole batch.
- "EmailActions": an array with one object per email, each with keys
  "id", "From", "Subject", "Summary", "RecommendedAction", "ReplyContent".

CRITICAL RULES:
1. "id" must be copied exactly from the [ID: ...] label of the email.
2. "RecommendedAction" must be exactly one of:
   - "mark_as_read": receipts, security alerts, or personal updates that need no reply.
   - "trash": marketing, newsletters, low-value automated mail, social updates.
   - "reply": the sender expects a response.
3. Never use "ignore" or "no action".
4. When "RecommendedAction" is "reply", "ReplyContent" must hold a complete,
   polite draft reply. Otherwise set "ReplyContent" to "".
5. Respond with the JSON object only.

Emails:
`

// BuildPrompt renders one labeled block per message, in input order.
// Bodies are cut to limit runes; limit <= 0 disables the cut.
func BuildPrompt(msgs []domain.InboxMessage, limit int) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for i, m := range msgs {
		fmt.Fprintf(&b, "\nEmail %d [ID: %s]:\n", i+1, m.ID)
		fmt.Fprintf(&b, "id: %s\n", m.ID)
		fmt.Fprintf(&b, "From: %s\n", m.From)
		fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
		b.WriteString("Body:\n")
		b.WriteString(truncateRunes(m.Body, limit))
		b.WriteString("\n")
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "\n[...truncated]"
}

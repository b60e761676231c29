package domain

import "strings"

// RecommendedAction is the disposition proposed for one inbox message.
type RecommendedAction string

const (
	ActionMarkAsRead RecommendedAction = "mark_as_read"
	ActionTrash      RecommendedAction = "trash"
	ActionReply      RecommendedAction = "reply"
)

func (a RecommendedAction) Valid() bool {
	switch a {
	case ActionMarkAsRead, ActionTrash, ActionReply:
		return true
	}
	return false
}

func (a RecommendedAction) String() string { return string(a) }

// InboxMessage is one unread message as fetched from the mailbox.
// Body is plain text with extracted attachment text appended.
type InboxMessage struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	BodyHTML string `json:"bodyHtml,omitempty"`
}

// TriageAction is the normalized recommendation for one message.
// Field names on the wire follow the frontend contract.
type TriageAction struct {
	ID                string            `json:"id"`
	From              string            `json:"From"`
	Subject           string            `json:"Subject"`
	Summary           string            `json:"Summary"`
	RecommendedAction RecommendedAction `json:"RecommendedAction"`
	ReplyContent      string            `json:"ReplyContent"`
	Body              string            `json:"Body"`
	BodyHTML          string            `json:"BodyHtml"`
}

// TriageResult is the outcome of one classification call.
type TriageResult struct {
	Actions  []TriageAction `json:"emails"`
	Briefing string         `json:"global_summary"`
}

// Replies returns the actions flagged for a reply, in result order.
func (r *TriageResult) Replies() []TriageAction {
	var out []TriageAction
	for _, a := range r.Actions {
		if a.RecommendedAction == ActionReply {
			out = append(out, a)
		}
	}
	return out
}

// Digest pairs the fetched batch with its classification.
// Result is nil when the inbox had nothing unread. Skipped holds unread ids
// whose fetch failed; they are not part of Messages or Result.
type Digest struct {
	Messages []InboxMessage
	Result   *TriageResult
	Skipped  []string
}

// Incomplete reports whether some unread messages were left out.
func (d *Digest) Incomplete() bool {
	return d != nil && len(d.Skipped) > 0
}

func (d *Digest) Empty() bool {
	return d == nil || len(d.Messages) == 0
}

// IDs returns the fetched message ids in mailbox order.
func (d *Digest) IDs() []string {
	ids := make([]string, 0, len(d.Messages))
	for _, m := range d.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// Message returns the fetched message with id.
func (d *Digest) Message(id string) (InboxMessage, bool) {
	for _, m := range d.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return InboxMessage{}, false
}

// Has reports whether id belongs to the fetched batch.
func (d *Digest) Has(id string) bool {
	_, ok := d.Message(id)
	return ok
}

// ReplyDraft is an outgoing reply.
type ReplyDraft struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const DefaultReplySubject = "No Subject"

// ReplySubject derives a reply subject from the original one.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return DefaultReplySubject
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// ActionOutcome reports the result of applying one mutation.
type ActionOutcome struct {
	ID     string
	Action RecommendedAction
	Err    error
}

func (o ActionOutcome) OK() bool { return o.Err == nil }

// Package cli runs one interactive triage pass on a terminal.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mailbrief/core/domain"
	"mailbrief/core/port/in"
	"mailbrief/core/port/out"
	"mailbrief/pkg/logger"
)

const (
	choiceYes  = "y"
	choiceEdit = "edit"
)

// Terminal reads answers line by line and prints prompts. One Terminal
// should own the input so buffered lines are not lost between readers.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(r io.Reader, w io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(r), out: w}
}

// Runner drives one triage pass on a Terminal.
type Runner struct {
	*Terminal
	triage in.TriageService
}

func NewRunner(triage in.TriageService, term *Terminal) *Runner {
	return &Runner{Terminal: term, triage: triage}
}

// Report tallies the mutations a run attempted.
type Report struct {
	Outcomes []domain.ActionOutcome
}

func (r *Report) add(o domain.ActionOutcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Failed counts outcomes that carry an error.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// Run fetches, classifies and walks the user through the recommendations.
// Only a failed summarize is returned as an error; mutation failures are
// printed and recorded in the report.
func (r *Runner) Run(ctx context.Context, mailbox out.MailboxGateway) (*Report, error) {
	report := &Report{}

	digest, err := r.triage.Summarize(ctx, mailbox)
	if err != nil {
		return report, err
	}
	if digest.Empty() {
		r.printf("No unread emails found.\n")
		return report, nil
	}
	if digest.Result == nil || len(digest.Result.Actions) == 0 {
		r.printf("No important emails found today.\n")
		return report, nil
	}

	result := digest.Result
	if digest.Incomplete() {
		r.printf("Note: %d unread emails could not be fetched and are not included.\n", len(digest.Skipped))
	}
	r.printDigest(result)

	markedAll := false
	if r.ask("Do you want to mark all these important emails as read? (y/n): ") == choiceYes {
		markedAll = r.markAll(ctx, mailbox, digest, report)
	}

	for _, action := range result.Replies() {
		msg, ok := digest.Message(action.ID)
		if !ok {
			r.printf("\nSkipping reply for unknown message id %q\n", action.ID)
			continue
		}
		r.reply(ctx, mailbox, action, msg.From, markedAll, report)
	}

	if failed := report.Failed(); failed > 0 {
		r.printf("\n%d of %d actions failed.\n", failed, len(report.Outcomes))
	}
	return report, nil
}

func (r *Runner) printDigest(result *domain.TriageResult) {
	if result.Briefing != "" {
		r.printf("\nBriefing:\n%s\n", result.Briefing)
	}
	r.printf("\nSummary of important emails:\n\n")
	for _, a := range result.Actions {
		r.printf("From: %s\n", a.From)
		r.printf("Subject: %s\n", a.Subject)
		r.printf("Summary: %s\n", a.Summary)
		r.printf("Recommended Action: %s\n\n", a.RecommendedAction)
	}
}

// markAll marks every classified message read in one batch. Actions whose
// id is not in the fetched batch are left out.
func (r *Runner) markAll(ctx context.Context, mailbox out.MailboxGateway, digest *domain.Digest, report *Report) bool {
	var ids []string
	for _, a := range digest.Result.Actions {
		if digest.Has(a.ID) {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		r.printf("No known message ids to mark as read.\n")
		return false
	}

	err := r.triage.MarkAllRead(ctx, mailbox, ids)
	for _, id := range ids {
		report.add(domain.ActionOutcome{ID: id, Action: domain.ActionMarkAsRead, Err: err})
	}
	if err != nil {
		r.printf("Failed to mark emails as read: %v\n", err)
		return false
	}
	r.printf("All important emails marked as read.\n")
	return true
}

// reply addresses the fetched sender, not the address the model echoed.
func (r *Runner) reply(ctx context.Context, mailbox out.MailboxGateway, action domain.TriageAction, to string, alreadyRead bool, report *Report) {
	r.printf("\nReply suggested for email from %s | Subject: %s\n", to, action.Subject)
	r.printf("AI draft:\n%s\n", action.ReplyContent)

	body := action.ReplyContent
	switch r.ask("Do you want to send this reply or edit it? (y/n/edit): ") {
	case choiceYes:
	case choiceEdit:
		r.printf("Edit your reply below:\n")
		body = r.readLine()
	default:
		r.printf("Reply skipped.\n")
		return
	}

	outcome := r.triage.SendReply(ctx, mailbox, action, to, body, alreadyRead)
	report.add(outcome)
	if outcome.Err != nil {
		r.printf("Failed to reply to %s: %v\n", to, outcome.Err)
		return
	}
	r.printf("Reply successfully sent\n")
}

// ask prints prompt and returns the lowercased answer.
func (t *Terminal) ask(prompt string) string {
	t.printf("%s", prompt)
	return strings.ToLower(t.readLine())
}

// readLine returns one trimmed line. EOF reads as an empty answer.
func (t *Terminal) readLine() string {
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.WithError(err).Warn("[CLI] failed to read input")
	}
	return strings.TrimSpace(line)
}

func (t *Terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

// Package summarylog appends triage results to a plain-text journal.
package summarylog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
)

const (
	timestampLayout = "2006-01-02 15:04:05 MST"
	entryHeading    = "Summary of important emails:\n"
)

var rule = strings.Repeat("-", 40)

// Appender writes one entry per triage result and skips an entry identical
// to the last one in the file.
type Appender struct {
	path string
	loc  *time.Location
	now  func() time.Time
	mu   sync.Mutex
}

// NewAppender creates an appender. A nil loc uses time.Local.
func NewAppender(path string, loc *time.Location) *Appender {
	if loc == nil {
		loc = time.Local
	}
	return &Appender{path: path, loc: loc, now: time.Now}
}

// RenderBlocks renders the per-action blocks joined by blank lines.
func RenderBlocks(actions []domain.TriageAction) string {
	blocks := make([]string, 0, len(actions))
	for _, a := range actions {
		var b strings.Builder
		fmt.Fprintf(&b, "From: %s\n", a.From)
		fmt.Fprintf(&b, "Subject: %s\n", a.Subject)
		fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
		fmt.Fprintf(&b, "Recommended Action: %s\n", a.RecommendedAction)
		if a.RecommendedAction == domain.ActionReply {
			fmt.Fprintf(&b, "ReplyContent: %s\n", a.ReplyContent)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

// RenderEntry renders a complete journal entry stamped with at.
func RenderEntry(actions []domain.TriageAction, at time.Time) string {
	return fmt.Sprintf("\n--- %s ---\n%s%s%s\n", at.Format(timestampLayout), entryHeading, RenderBlocks(actions), rule)
}

func (a *Appender) Append(ctx context.Context, actions []domain.TriageAction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	tail := strings.TrimSpace(entryHeading + RenderBlocks(actions) + rule)

	a.mu.Lock()
	defer a.mu.Unlock()

	last, err := readTail(a.path, len(tail)+64)
	if err != nil {
		return false, fmt.Errorf("read summary log: %w", err)
	}
	if strings.HasSuffix(strings.TrimSpace(last), tail) {
		return false, nil
	}

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open summary log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(RenderEntry(actions, a.now().In(a.loc))); err != nil {
		return false, fmt.Errorf("write summary log: %w", err)
	}
	return true, nil
}

// readTail returns up to n trailing bytes of path; a missing file reads as "".
func readTail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := info.Size() - int64(n)
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var _ out.SummaryLog = (*Appender)(nil)

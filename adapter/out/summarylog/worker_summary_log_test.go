package summarylog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mailbrief/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []domain.TriageAction{
	{ID: "1", From: "a@x.com", Subject: "Sale!", Summary: "Ads", RecommendedAction: domain.ActionTrash},
	{ID: "2", From: "b@x.com", Subject: "Lunch", Summary: "Asks about lunch", RecommendedAction: domain.ActionReply, ReplyContent: "Sure"},
}

func newTestAppender(t *testing.T) (*Appender, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "summaries.txt")
	a := NewAppender(path, time.UTC)
	a.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a, path
}

func TestRenderEntry(t *testing.T) {
	got := RenderEntry(sample, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	want := "\n--- 2024-01-02 03:04:05 UTC ---\n" +
		"Summary of important emails:\n" +
		"From: a@x.com\nSubject: Sale!\nSummary: Ads\nRecommended Action: trash\n" +
		"\n" +
		"From: b@x.com\nSubject: Lunch\nSummary: Asks about lunch\nRecommended Action: reply\nReplyContent: Sure\n" +
		strings.Repeat("-", 40) + "\n"
	assert.Equal(t, want, got)
}

func TestAppend_SkipsConsecutiveDuplicate(t *testing.T) {
	a, path := newTestAppender(t)
	ctx := context.Background()

	wrote, err := a.Append(ctx, sample)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = a.Append(ctx, sample)
	require.NoError(t, err)
	assert.False(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "Summary of important emails:"))
}

func TestAppend_DifferentResults(t *testing.T) {
	a, path := newTestAppender(t)
	ctx := context.Background()

	_, err := a.Append(ctx, sample)
	require.NoError(t, err)
	wrote, err := a.Append(ctx, sample[:1])
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Summary of important emails:"))
}

func TestAppend_EmptyAfterNonEmpty(t *testing.T) {
	a, path := newTestAppender(t)
	ctx := context.Background()

	_, err := a.Append(ctx, sample)
	require.NoError(t, err)
	wrote, err := a.Append(ctx, nil)
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Summary of important emails:"))
}

func TestAppend_Concurrent(t *testing.T) {
	a, path := newTestAppender(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.Append(context.Background(), sample)
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "Summary of important emails:"))
}

package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mailbrief/core/domain"
	"mailbrief/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_EndToEnd(t *testing.T) {
	model := &fakeModel{response: `{"GlobalBriefing":"Just ads.","EmailActions":[{"id":"1","RecommendedAction":"trash"}]}`}
	c := NewClassifier(model, 0)

	msgs := []domain.InboxMessage{{ID: "1", From: "a@x.com", Subject: "Sale!", Body: "50% off"}}
	result, err := c.Classify(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, "Just ads.", result.Briefing)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "1", result.Actions[0].ID)
	assert.Equal(t, domain.ActionTrash, result.Actions[0].RecommendedAction)
	assert.Equal(t, "50% off", result.Actions[0].Body)
}

func TestClassify_OneActionPerInput(t *testing.T) {
	msgs := make([]domain.InboxMessage, 5)
	items := make([]string, 5)
	for i := range msgs {
		id := fmt.Sprintf("m-%d", i)
		msgs[i] = domain.InboxMessage{ID: id, Body: "body " + id}
		// model answers in reverse order
		items[len(items)-1-i] = fmt.Sprintf(`{"id":%q,"RecommendedAction":"mark_as_read"}`, id)
	}
	model := &fakeModel{response: `{"GlobalBriefing":"ok","EmailActions":[` + strings.Join(items, ",") + `]}`}

	result, err := NewClassifier(model, 0).Classify(context.Background(), msgs)
	require.NoError(t, err)

	var got []string
	for _, a := range result.Actions {
		got = append(got, a.ID)
		assert.Equal(t, "body "+a.ID, a.Body)
	}
	assert.ElementsMatch(t, []string{"m-0", "m-1", "m-2", "m-3", "m-4"}, got)
	assert.Equal(t, "m-4", got[0], "model order is preserved")
}

func TestClassify_MalformedOutput(t *testing.T) {
	model := &fakeModel{response: "Sorry, I can't help."}

	result, err := NewClassifier(model, 0).Classify(context.Background(), []domain.InboxMessage{{ID: "1"}})
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
	assert.NotNil(t, result.Actions)
	assert.Equal(t, "No summary available.", result.Briefing)
}

func TestClassify_FencedMatchesPlain(t *testing.T) {
	msgs := []domain.InboxMessage{{ID: "1", Body: "b1"}, {ID: "2", Body: "b2"}}

	plain, err := NewClassifier(&fakeModel{response: wellFormed}, 0).Classify(context.Background(), msgs)
	require.NoError(t, err)
	fenced, err := NewClassifier(&fakeModel{response: "```json\n" + wellFormed + "\n```"}, 0).Classify(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, plain, fenced)
}

func TestClassify_InvalidActionCoerced(t *testing.T) {
	model := &fakeModel{response: `{"GlobalBriefing":"x","EmailActions":[{"id":"1","RecommendedAction":"ignore","ReplyContent":"nope"}]}`}

	result, err := NewClassifier(model, 0).Classify(context.Background(), []domain.InboxMessage{{ID: "1"}})
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, domain.ActionMarkAsRead, result.Actions[0].RecommendedAction)
	assert.Empty(t, result.Actions[0].ReplyContent)
}

func TestClassify_OriginalBodyWins(t *testing.T) {
	model := &fakeModel{response: `[{"id":"1","Body":"made up","BodyHtml":"<b>made up</b>","RecommendedAction":"reply","ReplyContent":"Hi"}]`}
	msgs := []domain.InboxMessage{{ID: "1", Body: "the real body", BodyHTML: "<p>the real body</p>"}}

	result, err := NewClassifier(model, 0).Classify(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "the real body", result.Actions[0].Body)
	assert.Equal(t, "<p>the real body</p>", result.Actions[0].BodyHTML)
	assert.Equal(t, "Check your inbox for details.", result.Briefing)
}

func TestClassify_EmptyInput(t *testing.T) {
	model := &fakeModel{}
	_, err := NewClassifier(model, 0).Classify(context.Background(), nil)

	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, model.prompts, "model is not called")
}

func TestClassify_ModelFailure(t *testing.T) {
	cause := errors.New("quota exceeded")
	_, err := NewClassifier(&fakeModel{err: cause}, 0).Classify(context.Background(), []domain.InboxMessage{{ID: "1"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, apperr.IsUpstream(err))
}

func TestBuildPrompt(t *testing.T) {
	msgs := []domain.InboxMessage{
		{ID: "a1", From: "x@y.com", Subject: "First", Body: "hello"},
		{ID: "b2", From: "z@y.com", Subject: "Second", Body: strings.Repeat("é", 20)},
	}

	prompt := BuildPrompt(msgs, 10)

	first := strings.Index(prompt, "Email 1 [ID: a1]:\nid: a1\nFrom: x@y.com\nSubject: First\nBody:\nhello\n")
	second := strings.Index(prompt, "Email 2 [ID: b2]:")
	assert.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, prompt, strings.Repeat("é", 10)+"\n[...truncated]")
	assert.NotContains(t, prompt, strings.Repeat("é", 11))
	assert.Contains(t, prompt, "GlobalBriefing")
	assert.Contains(t, prompt, "EmailActions")
}

func TestClassify_TruncationLeavesBodyIntact(t *testing.T) {
	long := strings.Repeat("x", 50)
	model := &fakeModel{response: `[{"id":"1"}]`}

	result, err := NewClassifier(model, 10).Classify(context.Background(), []domain.InboxMessage{{ID: "1", Body: long}})
	require.NoError(t, err)
	assert.Equal(t, long, result.Actions[0].Body)
	assert.NotContains(t, model.prompts[0], long)
}

package triage

import (
	"context"
	"errors"
	"sync"

	"mailbrief/core/domain"
)

type fakeModel struct {
	response string
	err      error
	prompts  []string
}

func (m *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

type fakeMailbox struct {
	mu       sync.Mutex
	unread   []string
	messages map[string]domain.InboxMessage
	listErr  error
	fetchErr map[string]error
	sendErr  error

	read    []string
	trashed []string
	sent    []domain.ReplyDraft
}

func newFakeMailbox(msgs ...domain.InboxMessage) *fakeMailbox {
	mb := &fakeMailbox{messages: map[string]domain.InboxMessage{}, fetchErr: map[string]error{}}
	for _, m := range msgs {
		mb.unread = append(mb.unread, m.ID)
		mb.messages[m.ID] = m
	}
	return mb
}

func (f *fakeMailbox) ListUnread(context.Context) ([]string, error) {
	return f.unread, f.listErr
}

func (f *fakeMailbox) Fetch(_ context.Context, id string) (*domain.InboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &m, nil
}

func (f *fakeMailbox) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return nil
}

func (f *fakeMailbox) MarkReadBatch(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, ids...)
	return nil
}

func (f *fakeMailbox) Trash(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trashed = append(f.trashed, id)
	return nil
}

func (f *fakeMailbox) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, domain.ReplyDraft{To: to, Subject: subject, Body: body})
	return nil
}

type fakeSummaryLog struct {
	appended [][]domain.TriageAction
	err      error
}

func (l *fakeSummaryLog) Append(_ context.Context, actions []domain.TriageAction) (bool, error) {
	l.appended = append(l.appended, actions)
	return l.err == nil, l.err
}

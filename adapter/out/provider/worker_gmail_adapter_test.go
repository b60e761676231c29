package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"mailbrief/core/port/out"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

type gmailRecorder struct {
	mu       sync.Mutex
	modified map[string][]string
	batches  [][]string
	trashed  []string
	sentRaw  []string
	query    map[string]string
}

func newGmailServer(t *testing.T) (*httptest.Server, *gmailRecorder) {
	t.Helper()
	rec := &gmailRecorder{modified: map[string][]string{}}

	message := fmt.Sprintf(`{
		"id": "m1",
		"payload": {
			"mimeType": "multipart/mixed",
			"headers": [
				{"name": "From", "value": "Alice <alice@example.com>"},
				{"name": "subject", "value": "Lunch"}
			],
			"parts": [
				{"mimeType": "multipart/alternative", "parts": [
					{"mimeType": "text/plain", "body": {"data": %q}},
					{"mimeType": "text/html", "body": {"data": %q}}
				]},
				{"mimeType": "text/plain", "filename": "notes.txt", "body": {"attachmentId": "att1", "size": 14}}
			]
		}
	}`, b64("Hi there"), b64("<p>Hi there</p>"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.query = map[string]string{
			"q":          r.URL.Query().Get("q"),
			"labelIds":   r.URL.Query().Get("labelIds"),
			"maxResults": r.URL.Query().Get("maxResults"),
		}
		rec.mu.Unlock()
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"resultSizeEstimate":2}`)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, message)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`)
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1/attachments/att1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"data":%q,"size":14}`, b64("attached notes"))
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RemoveLabelIds []string `json:"removeLabelIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		rec.mu.Lock()
		rec.modified[r.PathValue("id")] = req.RemoveLabelIds
		rec.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"id":%q}`, r.PathValue("id"))
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/batchModify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ids []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		rec.mu.Lock()
		rec.batches = append(rec.batches, req.Ids)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/trash", func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.trashed = append(rec.trashed, r.PathValue("id"))
		rec.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"id":%q}`, r.PathValue("id"))
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Raw string `json:"raw"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		rec.mu.Lock()
		rec.sentRaw = append(rec.sentRaw, req.Raw)
		rec.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"sent1"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func openTestGmail(t *testing.T, srv *httptest.Server) out.MailboxGateway {
	t.Helper()
	f := NewGmailFactory(GmailConfig{ClientID: "id", ClientSecret: "secret"},
		WithClientOptions(option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/")))
	mb, err := f.Open(context.Background(), &oauth2.Token{AccessToken: "token"})
	require.NoError(t, err)
	return mb
}

func TestGmailMailbox_ListUnread(t *testing.T) {
	srv, rec := newGmailServer(t)
	mb := openTestGmail(t, srv)

	ids, err := mb.ListUnread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	assert.Equal(t, "is:unread", rec.query["q"])
	assert.Equal(t, "INBOX", rec.query["labelIds"])
	assert.Equal(t, "100", rec.query["maxResults"])
}

func TestGmailMailbox_Fetch(t *testing.T) {
	srv, _ := newGmailServer(t)
	mb := openTestGmail(t, srv)

	msg, err := mb.Fetch(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Alice <alice@example.com>", msg.From)
	assert.Equal(t, "Lunch", msg.Subject)
	assert.Equal(t, "<p>Hi there</p>", msg.BodyHTML)
	assert.Equal(t, "Hi there\n[Attachment: notes.txt]\nattached notes\n", msg.Body)
}

func TestGmailMailbox_FetchNotFound(t *testing.T) {
	srv, _ := newGmailServer(t)
	mb := openTestGmail(t, srv)

	_, err := mb.Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, out.ProviderErrNotFound, out.ProviderErrorCodeOf(err))
}

func TestGmailMailbox_Mutations(t *testing.T) {
	srv, rec := newGmailServer(t)
	mb := openTestGmail(t, srv)
	ctx := context.Background()

	require.NoError(t, mb.MarkRead(ctx, "m1"))
	require.NoError(t, mb.Trash(ctx, "m2"))

	assert.Equal(t, []string{"UNREAD"}, rec.modified["m1"])
	assert.Equal(t, []string{"m2"}, rec.trashed)
}

func TestGmailMailbox_MarkReadBatchChunks(t *testing.T) {
	srv, rec := newGmailServer(t)
	mb := openTestGmail(t, srv)

	ids := make([]string, 1001)
	for i := range ids {
		ids[i] = "id" + strconv.Itoa(i)
	}
	require.NoError(t, mb.MarkReadBatch(context.Background(), ids))

	require.Len(t, rec.batches, 2)
	assert.Len(t, rec.batches[0], 1000)
	assert.Equal(t, []string{"id1000"}, rec.batches[1])
}

func TestGmailMailbox_Send(t *testing.T) {
	srv, rec := newGmailServer(t)
	mb := openTestGmail(t, srv)

	require.NoError(t, mb.Send(context.Background(), "bob@example.com", "Re: Lunch", "Sounds good"))
	require.Len(t, rec.sentRaw, 1)

	raw, err := decodeBase64URL(rec.sentRaw[0])
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "bob@example.com")
	assert.Contains(t, text, "Subject: Re: Lunch")
	assert.Contains(t, text, "Sounds good")
}

func TestGmailFactory_OpenRequiresToken(t *testing.T) {
	f := NewGmailFactory(GmailConfig{})
	_, err := f.Open(context.Background(), nil)
	assert.Equal(t, out.ProviderErrAuth, out.ProviderErrorCodeOf(err))
	assert.Equal(t, "gmail", f.Provider())
}

func TestGmailAuth_AuthURL(t *testing.T) {
	a := NewGmailAuth(GmailConfig{ClientID: "cid", RedirectURL: "http://localhost/callback"})
	u := a.AuthURL("state-1")

	assert.Contains(t, u, "state=state-1")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "prompt=consent")
	assert.Contains(t, u, "client_id=cid")
}

type sequenceTokenSource struct {
	tokens []string
	i      int
}

func (s *sequenceTokenSource) Token() (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: s.tokens[s.i]}
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return tok, nil
}

func TestPersistingTokenSource(t *testing.T) {
	var refreshed []string
	src := &persistingTokenSource{
		base:      &sequenceTokenSource{tokens: []string{"a", "a", "b"}},
		last:      "a",
		onRefresh: func(tok *oauth2.Token) { refreshed = append(refreshed, tok.AccessToken) },
	}

	for i := 0; i < 4; i++ {
		_, err := src.Token()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"b"}, refreshed)
}

func TestGmailTripping(t *testing.T) {
	assert.True(t, gmailTripping(fmt.Errorf("dial tcp: refused")))
	assert.True(t, gmailTripping(&googleapi.Error{Code: 503}))
	assert.False(t, gmailTripping(&googleapi.Error{Code: 404}))
	assert.False(t, gmailTripping(fmt.Errorf("list: %w", context.Canceled)))
}

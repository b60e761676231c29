package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/resilience"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailProvider     = "gmail"
	gmailUser         = "me"
	gmailUnreadQuery  = "is:unread"
	gmailInboxLabel   = "INBOX"
	gmailUnreadLabel  = "UNREAD"
	gmailListLimit    = 100
	gmailBatchMaxSize = 1000
)

// =============================================================================
// OAuth
// =============================================================================

// GmailConfig holds Gmail OAuth client configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthConfig returns the oauth2 config for the Gmail modify scope.
func (c GmailConfig) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{gmail.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
}

// GmailAuth implements out.OAuthProvider for Google accounts.
type GmailAuth struct {
	config *oauth2.Config
}

func NewGmailAuth(cfg GmailConfig) *GmailAuth {
	return &GmailAuth{config: cfg.OAuthConfig()}
}

// AuthURL returns the consent URL. Offline access with forced approval
// makes Google issue a refresh token on every consent.
func (a *GmailAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange exchanges an authorization code for a token.
func (a *GmailAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, out.NewProviderError(gmailProvider, out.ProviderErrAuth, "failed to exchange token", err, false)
	}
	return token, nil
}

// =============================================================================
// Factory
// =============================================================================

// GmailFactory opens token-bound Gmail mailboxes. All mailboxes share one
// circuit breaker.
type GmailFactory struct {
	config    *oauth2.Config
	breaker   *resilience.Breaker
	options   []option.ClientOption
	onRefresh func(*oauth2.Token)
	client    *http.Client
}

// GmailOption configures a GmailFactory.
type GmailOption func(*GmailFactory)

// WithTokenRefreshHandler is called with the new token whenever the access
// token is refreshed, so callers can persist it.
func WithTokenRefreshHandler(fn func(*oauth2.Token)) GmailOption {
	return func(f *GmailFactory) { f.onRefresh = fn }
}

// WithClientOptions appends Google API client options (endpoint, HTTP client).
func WithClientOptions(opts ...option.ClientOption) GmailOption {
	return func(f *GmailFactory) { f.options = append(f.options, opts...) }
}

// WithHTTPClient sets the base client for API calls and token refreshes.
func WithHTTPClient(c *http.Client) GmailOption {
	return func(f *GmailFactory) { f.client = c }
}

func NewGmailFactory(cfg GmailConfig, opts ...GmailOption) *GmailFactory {
	f := &GmailFactory{
		config:  cfg.OAuthConfig(),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig("gmail-api")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *GmailFactory) Provider() string {
	return gmailProvider
}

// Open builds a Gmail client that refreshes token as needed.
func (f *GmailFactory) Open(ctx context.Context, token *oauth2.Token) (out.MailboxGateway, error) {
	if token == nil {
		return nil, out.NewProviderError(gmailProvider, out.ProviderErrAuth, "missing token", nil, false)
	}

	onRefresh := f.onRefresh
	if fn := out.TokenRefreshFrom(ctx); fn != nil {
		global := f.onRefresh
		onRefresh = func(tok *oauth2.Token) {
			if global != nil {
				global(tok)
			}
			fn(tok)
		}
	}

	tokenCtx := ctx
	if f.client != nil {
		tokenCtx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	}
	src := &persistingTokenSource{
		base:      f.config.TokenSource(tokenCtx, token),
		last:      token.AccessToken,
		onRefresh: onRefresh,
	}

	auth := option.WithTokenSource(src)
	if f.client != nil {
		auth = option.WithHTTPClient(oauth2.NewClient(tokenCtx, src))
	}
	opts := append([]option.ClientOption{auth}, f.options...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, out.NewProviderError(gmailProvider, out.ProviderErrServer, "failed to create gmail service", err, false)
	}

	return &GmailMailbox{svc: svc, breaker: f.breaker}, nil
}

// persistingTokenSource reports refreshed tokens to onRefresh.
type persistingTokenSource struct {
	base      oauth2.TokenSource
	onRefresh func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed && s.onRefresh != nil {
		s.onRefresh(tok)
	}
	return tok, nil
}

// =============================================================================
// Mailbox
// =============================================================================

// GmailMailbox implements out.MailboxGateway on the Gmail REST API.
type GmailMailbox struct {
	svc     *gmail.Service
	breaker *resilience.Breaker
}

// ListUnread returns up to 100 unread inbox message ids, newest first.
func (m *GmailMailbox) ListUnread(ctx context.Context) ([]string, error) {
	var resp *gmail.ListMessagesResponse
	err := m.call(func() error {
		var err error
		resp, err = m.svc.Users.Messages.List(gmailUser).
			LabelIds(gmailInboxLabel).
			Q(gmailUnreadQuery).
			MaxResults(gmailListLimit).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, wrapGmailError(err, "failed to list messages")
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// Fetch loads one message with its plain-text body and attachment text.
func (m *GmailMailbox) Fetch(ctx context.Context, id string) (*domain.InboxMessage, error) {
	var msg *gmail.Message
	err := m.call(func() error {
		var err error
		msg, err = m.svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, wrapGmailError(err, "failed to get message")
	}

	result := &domain.InboxMessage{ID: msg.Id}
	if msg.Payload == nil {
		return result, nil
	}
	result.From = gmailHeader(msg.Payload.Headers, "From")
	result.Subject = gmailHeader(msg.Payload.Headers, "Subject")

	var (
		plain  strings.Builder
		html   string
		blocks strings.Builder
	)
	m.walkParts(ctx, msg.Id, msg.Payload, &plain, &html, &blocks, 0)

	result.BodyHTML = html
	result.Body = bodyText(plain.String(), html) + blocks.String()
	return result, nil
}

func (m *GmailMailbox) walkParts(ctx context.Context, msgID string, part *gmail.MessagePart, plain *strings.Builder, html *string, blocks *strings.Builder, depth int) {
	if part == nil || depth > 20 {
		return
	}

	switch {
	case part.Filename != "":
		blocks.WriteString(attachmentBlock(part.Filename, m.attachmentText(ctx, msgID, part)))
	case part.MimeType == "text/plain":
		if data, ok := partData(part); ok {
			plain.Write(data)
		}
	case part.MimeType == "text/html" && *html == "":
		if data, ok := partData(part); ok {
			*html = string(data)
		}
	}

	for _, p := range part.Parts {
		m.walkParts(ctx, msgID, p, plain, html, blocks, depth+1)
	}
}

func (m *GmailMailbox) attachmentText(ctx context.Context, msgID string, part *gmail.MessagePart) string {
	if part.Body == nil {
		return ""
	}
	if part.Body.AttachmentId == "" {
		data, _ := partData(part)
		return AttachmentText(part.Filename, part.MimeType, data)
	}

	var body *gmail.MessagePartBody
	err := m.call(func() error {
		var err error
		body, err = m.svc.Users.Messages.Attachments.Get(gmailUser, msgID, part.Body.AttachmentId).Context(ctx).Do()
		return err
	})
	if err != nil {
		logger.WithError(err).WithFields(map[string]any{
			"message_id": msgID,
			"filename":   part.Filename,
		}).Warn("[GmailMailbox] attachment download failed")
		return fmt.Sprintf("[Could not download attachment: %v]", err)
	}

	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return fmt.Sprintf("[Could not decode attachment: %v]", err)
	}
	return AttachmentText(part.Filename, part.MimeType, data)
}

// MarkRead removes the UNREAD label.
func (m *GmailMailbox) MarkRead(ctx context.Context, id string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{gmailUnreadLabel}}
	err := m.call(func() error {
		_, err := m.svc.Users.Messages.Modify(gmailUser, id, req).Context(ctx).Do()
		return err
	})
	return wrapGmailError(err, "failed to mark message read")
}

// MarkReadBatch removes UNREAD from ids, in chunks the API accepts.
func (m *GmailMailbox) MarkReadBatch(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += gmailBatchMaxSize {
		end := start + gmailBatchMaxSize
		if end > len(ids) {
			end = len(ids)
		}
		req := &gmail.BatchModifyMessagesRequest{
			Ids:            ids[start:end],
			RemoveLabelIds: []string{gmailUnreadLabel},
		}
		err := m.call(func() error {
			return m.svc.Users.Messages.BatchModify(gmailUser, req).Context(ctx).Do()
		})
		if err != nil {
			return wrapGmailError(err, "failed to batch mark read")
		}
	}
	return nil
}

// Trash moves a message to the trash.
func (m *GmailMailbox) Trash(ctx context.Context, id string) error {
	err := m.call(func() error {
		_, err := m.svc.Users.Messages.Trash(gmailUser, id).Context(ctx).Do()
		return err
	})
	return wrapGmailError(err, "failed to trash message")
}

// Send sends a plain-text message from the authenticated account.
func (m *GmailMailbox) Send(ctx context.Context, to, subject, body string) error {
	raw, err := composeMessage("", to, subject, body)
	if err != nil {
		return out.NewProviderError(gmailProvider, out.ProviderErrInvalidInput, "failed to compose message", err, false)
	}

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	err = m.call(func() error {
		_, err := m.svc.Users.Messages.Send(gmailUser, msg).Context(ctx).Do()
		return err
	})
	return wrapGmailError(err, "failed to send message")
}

func (m *GmailMailbox) call(fn func() error) error {
	return m.breaker.Execute(fn, gmailTripping)
}

// =============================================================================
// Helpers
// =============================================================================

// gmailTripping reports whether err indicates Gmail itself is unhealthy.
// Client errors (bad id, auth) must not open the breaker.
func gmailTripping(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return true
}

func wrapGmailError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return out.NewProviderError(gmailProvider, out.ProviderErrServer, "gmail unavailable", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400:
			return out.NewProviderError(gmailProvider, out.ProviderErrInvalidInput, "Invalid request", err, false)
		case 401:
			return out.NewProviderError(gmailProvider, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError(gmailProvider, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(gmailProvider, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(gmailProvider, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(gmailProvider, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(gmailProvider, out.ProviderErrServer, "Server error", err, true)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return out.NewProviderError(gmailProvider, out.ProviderErrTokenExpired, "token refresh failed", err, false)
	}

	return out.NewProviderError(gmailProvider, out.ProviderErrNetwork, defaultMsg, err, true)
}

func gmailHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func partData(part *gmail.MessagePart) ([]byte, bool) {
	if part.Body == nil || part.Body.Data == "" {
		return nil, false
	}
	data, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		logger.WithError(err).WithField("mime_type", part.MimeType).Debug("[GmailMailbox] failed to decode part")
		return nil, false
	}
	return data, true
}

// decodeBase64URL accepts padded and unpadded base64url.
func decodeBase64URL(s string) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

var (
	_ out.MailboxFactory = (*GmailFactory)(nil)
	_ out.MailboxGateway = (*GmailMailbox)(nil)
	_ out.OAuthProvider  = (*GmailAuth)(nil)
)

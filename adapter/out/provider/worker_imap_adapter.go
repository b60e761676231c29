package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"
	"mailbrief/pkg/logger"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"golang.org/x/oauth2"
)

const (
	imapProvider        = "imap"
	defaultMailbox      = "INBOX"
	defaultTrashMailbox = "[Gmail]/Trash"
	imapListLimit       = 100
)

// IMAPConfig holds static credentials for an IMAP/SMTP account.
type IMAPConfig struct {
	Addr         string // host:port, implicit TLS
	SMTPAddr     string // host:port, implicit TLS
	Username     string
	Password     string
	Mailbox      string
	TrashMailbox string
	From         string
}

func (c IMAPConfig) withDefaults() IMAPConfig {
	if c.Mailbox == "" {
		c.Mailbox = defaultMailbox
	}
	if c.TrashMailbox == "" {
		c.TrashMailbox = defaultTrashMailbox
	}
	if c.From == "" {
		c.From = c.Username
	}
	return c
}

// IMAPFactory opens IMAP sessions. The OAuth token passed to Open is unused.
type IMAPFactory struct {
	cfg      IMAPConfig
	dialIMAP func(addr string) (*client.Client, error)
	dialSMTP func(addr string) (*smtp.Client, error)
}

func NewIMAPFactory(cfg IMAPConfig) *IMAPFactory {
	return &IMAPFactory{
		cfg:      cfg.withDefaults(),
		dialIMAP: dialIMAPTLS,
		dialSMTP: dialSMTPTLS,
	}
}

func (f *IMAPFactory) Provider() string {
	return imapProvider
}

// Open logs in and selects the configured mailbox read-write.
func (f *IMAPFactory) Open(ctx context.Context, _ *oauth2.Token) (out.MailboxGateway, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := f.dialIMAP(f.cfg.Addr)
	if err != nil {
		return nil, out.NewProviderError(imapProvider, out.ProviderErrNetwork, "IMAP dial failed", err, true)
	}
	if err := c.Login(f.cfg.Username, f.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, out.NewProviderError(imapProvider, out.ProviderErrAuth, "IMAP login failed", err, false)
	}
	if _, err := c.Select(f.cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, out.NewProviderError(imapProvider, out.ProviderErrNotFound,
			fmt.Sprintf("selecting mailbox %q failed", f.cfg.Mailbox), err, false)
	}

	return &IMAPMailbox{cfg: f.cfg, client: c, dialSMTP: f.dialSMTP}, nil
}

func dialIMAPTLS(addr string) (*client.Client, error) {
	return client.DialTLS(addr, &tls.Config{ServerName: hostOf(addr)})
}

func dialSMTPTLS(addr string) (*smtp.Client, error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: hostOf(addr)})
	if err != nil {
		return nil, err
	}
	return smtp.NewClient(conn), nil
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// IMAPMailbox implements out.MailboxGateway over one IMAP connection.
// Message ids are UIDs in the selected mailbox.
type IMAPMailbox struct {
	cfg      IMAPConfig
	dialSMTP func(addr string) (*smtp.Client, error)

	mu     sync.Mutex
	client *client.Client
}

// Close logs out of the IMAP session.
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client.Logout()
}

// ListUnread returns the newest unseen UIDs, newest first.
func (m *IMAPMailbox) ListUnread(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, wrapIMAPError(err, "UID SEARCH failed")
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if len(uids) > imapListLimit {
		uids = uids[:imapListLimit]
	}

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids, nil
}

// Fetch peeks at the full message so fetching never sets \Seen.
func (m *IMAPMailbox) Fetch(ctx context.Context, id string) (*domain.InboxMessage, error) {
	seqSet, err := uidSet(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if body := msg.GetBody(section); body != nil {
			buf := new(bytes.Buffer)
			if _, err := buf.ReadFrom(body); err == nil {
				raw = buf.Bytes()
			}
		}
	}
	if err := <-done; err != nil {
		return nil, wrapIMAPError(err, "UID FETCH failed")
	}
	if raw == nil {
		return nil, out.NewProviderError(imapProvider, out.ProviderErrNotFound, "message "+id+" not found", nil, false)
	}

	msg, err := parseMessage(id, bytes.NewReader(raw))
	if err != nil {
		return nil, out.NewProviderError(imapProvider, out.ProviderErrServer, "failed to parse message", err, false)
	}
	return msg, nil
}

// MarkRead sets \Seen.
func (m *IMAPMailbox) MarkRead(ctx context.Context, id string) error {
	return m.MarkReadBatch(ctx, []string{id})
}

// MarkReadBatch sets \Seen on all ids in one STORE.
func (m *IMAPMailbox) MarkReadBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	seqSet, err := uidSet(ids...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	storeItem := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.UidStore(seqSet, storeItem, []any{imap.SeenFlag}, nil); err != nil {
		return wrapIMAPError(err, "UID STORE failed")
	}
	return nil
}

// Trash moves the message to the trash mailbox.
func (m *IMAPMailbox) Trash(ctx context.Context, id string) error {
	seqSet, err := uidSet(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := uidMove(m.client, seqSet, m.cfg.TrashMailbox); err != nil {
		return wrapIMAPError(err, "move to trash failed")
	}
	return nil
}

// uidMove falls back to COPY, STORE \Deleted, EXPUNGE when MOVE is refused.
func uidMove(c *client.Client, seqSet *imap.SeqSet, dest string) error {
	if err := c.UidMove(seqSet, dest); err == nil {
		return nil
	}
	if err := c.UidCopy(seqSet, dest); err != nil {
		return err
	}
	storeItem := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, storeItem, []any{imap.DeletedFlag}, nil); err != nil {
		return err
	}
	return c.Expunge(nil)
}

// Send submits the message over SMTP with PLAIN auth.
func (m *IMAPMailbox) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := composeMessage(m.cfg.From, to, subject, body)
	if err != nil {
		return out.NewProviderError(imapProvider, out.ProviderErrInvalidInput, "failed to compose message", err, false)
	}

	c, err := m.dialSMTP(m.cfg.SMTPAddr)
	if err != nil {
		return out.NewProviderError(imapProvider, out.ProviderErrNetwork, "SMTP dial failed", err, true)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)); err != nil {
		return out.NewProviderError(imapProvider, out.ProviderErrAuth, "SMTP auth failed", err, false)
	}
	if err := c.Mail(m.cfg.Username, nil); err != nil {
		return wrapIMAPError(err, "MAIL FROM failed")
	}
	if err := c.Rcpt(to, nil); err != nil {
		return out.NewProviderError(imapProvider, out.ProviderErrInvalidInput, "RCPT TO rejected", err, false)
	}

	w, err := c.Data()
	if err != nil {
		return wrapIMAPError(err, "DATA failed")
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return wrapIMAPError(err, "writing message failed")
	}
	if err := w.Close(); err != nil {
		return wrapIMAPError(err, "message rejected")
	}

	if err := c.Quit(); err != nil {
		logger.WithError(err).Debug("[IMAPMailbox] SMTP QUIT failed")
	}
	return nil
}

func uidSet(ids ...string) (*imap.SeqSet, error) {
	seqSet := new(imap.SeqSet)
	for _, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil || uid == 0 {
			return nil, out.NewProviderError(imapProvider, out.ProviderErrInvalidInput, "invalid message id "+strconv.Quote(id), err, false)
		}
		seqSet.AddNum(uint32(uid))
	}
	return seqSet, nil
}

func wrapIMAPError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return out.NewProviderError(imapProvider, out.ProviderErrNetwork, msg, err, true)
	}
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && smtpErr.Code >= 400 && smtpErr.Code < 500 {
		return out.NewProviderError(imapProvider, out.ProviderErrRateLimit, msg, err, true)
	}
	return out.NewProviderError(imapProvider, out.ProviderErrServer, msg, err, false)
}

var (
	_ out.MailboxFactory = (*IMAPFactory)(nil)
	_ out.MailboxGateway = (*IMAPMailbox)(nil)
)

package provider

import (
	"bytes"
	"io"
	"strings"
	"time"

	"mailbrief/core/domain"
	"mailbrief/pkg/logger"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// composeMessage renders a single-part text/plain RFC 5322 message.
// from may be empty when the transport fills it in (Gmail API).
func composeMessage(from, to, subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	if from != "" {
		if addrs, err := mail.ParseAddressList(from); err == nil {
			h.SetAddressList("From", addrs)
		} else {
			h.Set("From", from)
		}
	}
	if addrs, err := mail.ParseAddressList(to); err == nil {
		h.SetAddressList("To", addrs)
	} else {
		h.Set("To", to)
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseMessage reads a raw RFC 5322 message into an InboxMessage.
// Text parts form the body; every attachment is appended as a labeled block.
func parseMessage(id string, r io.Reader) (*domain.InboxMessage, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil {
		return nil, err
	}
	defer mr.Close()

	msg := &domain.InboxMessage{ID: id}
	if from, err := mr.Header.Text("From"); err == nil {
		msg.From = from
	} else {
		msg.From = mr.Header.Get("From")
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}

	var (
		plain  strings.Builder
		html   string
		blocks strings.Builder
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if part == nil {
			logger.WithError(err).WithField("message_id", id).Warn("[parseMessage] stopped at unreadable part")
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			t, _, _ := h.ContentType()
			data, _ := io.ReadAll(part.Body)
			if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
				blocks.WriteString(attachmentBlock(params["filename"], AttachmentText(params["filename"], t, data)))
				continue
			}
			switch t {
			case "text/plain":
				plain.Write(data)
			case "text/html":
				if html == "" {
					html = string(data)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			t, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				blocks.WriteString(attachmentBlock(filename, "[Could not read attachment]"))
				continue
			}
			if filename == "" {
				continue
			}
			blocks.WriteString(attachmentBlock(filename, AttachmentText(filename, t, data)))
		}
	}

	msg.BodyHTML = html
	msg.Body = bodyText(plain.String(), html) + blocks.String()
	return msg, nil
}

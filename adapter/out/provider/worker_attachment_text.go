// Package provider implements mailbox adapters (Gmail, IMAP/SMTP) and the factory that picks one.
package provider

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/k3a/html2text"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	unsupportedAttachment = "[Unsupported attachment type]"
	maxPDFPages           = 50
	wordNamespace         = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// attachmentKind classifies an attachment by extension first, then MIME type.
func attachmentKind(filename, mimeType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".doc", ".docx":
		return "word"
	case ".txt":
		return "text"
	}

	switch strings.ToLower(mimeType) {
	case "application/pdf":
		return "pdf"
	case "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "word"
	case "text/plain":
		return "text"
	}
	return ""
}

// AttachmentText returns the readable text of an attachment.
// Unreadable files yield a bracketed notice instead of an error so a single
// broken attachment never fails the whole message.
func AttachmentText(filename, mimeType string, data []byte) string {
	switch attachmentKind(filename, mimeType) {
	case "pdf":
		text, err := pdfText(data)
		if err != nil {
			return fmt.Sprintf("[Could not read PDF: %v]", err)
		}
		return text
	case "word":
		text, err := docxText(data)
		if err != nil {
			return fmt.Sprintf("[Could not read Word document: %v]", err)
		}
		return text
	case "text":
		return string(data)
	default:
		return unsupportedAttachment
	}
}

// attachmentBlock renders the labeled block appended to a message body.
func attachmentBlock(filename, text string) string {
	return fmt.Sprintf("\n[Attachment: %s]\n%s\n", filename, text)
}

// bodyText prefers the plain text part and falls back to the HTML part
// rendered as text.
func bodyText(plain, html string) string {
	if strings.TrimSpace(plain) != "" || html == "" {
		return plain
	}
	return html2text.HTML2Text(html)
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(map[string]*pdf.Font{})
		if err != nil {
			continue
		}
		sb.WriteString(content)
	}
	return sb.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer doc.Close()

	return wordXMLText(doc.Editable().GetContent())
}

// wordXMLText collects w:t runs, one line per w:p paragraph.
func wordXMLText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == wordNamespace && t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	if len(paragraphs) == 0 {
		return "", fmt.Errorf("no paragraphs found")
	}
	return strings.Join(paragraphs, "\n"), nil
}

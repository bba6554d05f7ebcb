// Package email parses raw inbound MIME messages for the smart-input worker.
package email

import (
	"errors"
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	Subject     string
	From        string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Parse reads a raw RFC 5322 message. Unknown charsets are tolerated; the
// affected parts are read as-is.
func Parse(raw string) (*Message, error) {
	mr, err := mail.CreateReader(strings.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, errs.NewValidationError(fmt.Sprintf("invalid email: %v", err))
	}
	defer mr.Close()

	msg := &Message{}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, errs.NewValidationError(fmt.Sprintf("invalid email part: %v", err))
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, errs.NewValidationError(fmt.Sprintf("read email body: %v", err))
			}
			switch contentType {
			case "text/plain", "":
				msg.Text += string(body)
			case "text/html":
				msg.HTML += string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, errs.NewValidationError(fmt.Sprintf("read attachment %q: %v", filename, err))
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})
		}
	}

	return msg, nil
}

// Body returns the text body, falling back to the HTML part converted to
// markdown. An email with neither is rejected.
func (m *Message) Body() (string, error) {
	if text := strings.TrimSpace(m.Text); text != "" {
		return text, nil
	}
	if strings.TrimSpace(m.HTML) != "" {
		converted, err := md.NewConverter("", true, nil).ConvertString(m.HTML)
		if err == nil && strings.TrimSpace(converted) != "" {
			return strings.TrimSpace(converted), nil
		}
	}
	return "", errs.NewValidationError("email has no text body")
}

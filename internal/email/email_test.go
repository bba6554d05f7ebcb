package email

import (
	"strings"
	"testing"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

const multipartEmail = "From: Agent Smith <agent@example.com>\r\n" +
	"To: inbox@example.com\r\n" +
	"Subject: Submission: Jane Doe\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please consider Jane Doe, writer of The Long Night.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"jane_doe_sample.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--XYZ--\r\n"

func TestParseMultipart(t *testing.T) {
	msg, err := Parse(multipartEmail)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Subject != "Submission: Jane Doe" || msg.From != "agent@example.com" {
		t.Fatalf("unexpected headers %+v", msg)
	}
	if !strings.Contains(msg.Text, "Jane Doe") {
		t.Fatalf("unexpected text %q", msg.Text)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "jane_doe_sample.pdf" || att.ContentType != "application/pdf" || string(att.Data) != "%PDF-1.4" {
		t.Fatalf("unexpected attachment %+v", att)
	}

	body, err := msg.Body()
	if err != nil || !strings.HasPrefix(body, "Please consider") {
		t.Fatalf("Body = %q, %v", body, err)
	}
}

func TestParseSinglePart(t *testing.T) {
	raw := "Subject: hi\r\nContent-Type: text/plain\r\n\r\nJust text.\r\n"
	msg, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(msg.Text) != "Just text." || len(msg.Attachments) != 0 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestBodyFallsBackToHTML(t *testing.T) {
	msg := &Message{HTML: "<p>Hello <strong>Jane</strong></p>"}
	body, err := msg.Body()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "Jane") || strings.Contains(body, "<p>") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestBodyEmpty(t *testing.T) {
	_, err := (&Message{Text: "  \r\n"}).Body()
	if err == nil || !errs.IsFatal(err) {
		t.Fatalf("expected fatal validation error, got %v", err)
	}
}

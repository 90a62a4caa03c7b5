package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"teenbudget.org/internal/obs"
)

func TestTemplatesRenderValues(t *testing.T) {
	subject, html, err := SignupCode("Ivan", "123456")
	if err != nil {
		t.Fatalf("SignupCode: %v", err)
	}
	if !strings.Contains(subject, "verification code") {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(html, "123456") || !strings.Contains(html, "Ivan") {
		t.Fatalf("code or name missing from body: %s", html)
	}

	_, html, err = ResentCode("654321")
	if err != nil || !strings.Contains(html, "654321") {
		t.Fatalf("ResentCode: err=%v body=%s", err, html)
	}

	link := "http://localhost:5174/resetpassword/resetcover/abc.def.ghi"
	_, html, err = ResetLink(link)
	if err != nil || !strings.Contains(html, `href="`+link+`"`) {
		t.Fatalf("ResetLink: err=%v body=%s", err, html)
	}
}

func TestTemplatesEscapeInput(t *testing.T) {
	_, html, err := SignupCode("<script>alert(1)</script>", "1")
	if err != nil {
		t.Fatalf("SignupCode: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected first name to be escaped: %s", html)
	}
}

func TestLogSenderWritesLine(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	if err := (LogSender{}).Send(context.Background(), "a@x.com", "hi", "<p>123456</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(buf.String(), `"to":"a@x.com"`) {
		t.Fatalf("recipient missing from log: %s", buf.String())
	}
	if strings.Contains(buf.String(), "123456") {
		t.Fatalf("body must not be logged by default: %s", buf.String())
	}

	buf.Reset()
	if err := (LogSender{IncludeBody: true}).Send(context.Background(), "a@x.com", "hi", "<p>123456</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(buf.String(), "123456") {
		t.Fatalf("body expected when enabled: %s", buf.String())
	}
}

func TestRecipientValidation(t *testing.T) {
	for _, to := range []string{"", "nobody", "a@x.com\r\nBcc: b@y.com"} {
		if err := (LogSender{}).Send(context.Background(), to, "s", "b"); !errors.Is(err, ErrInvalidRecipient) {
			t.Fatalf("Send(%q) = %v, want ErrInvalidRecipient", to, err)
		}
	}
}

func TestNewSMTPSenderRequiresHostAndFrom(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{From: "no-reply@x.com"}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "localhost"}); err == nil {
		t.Fatal("expected error without sender")
	}
}

func TestSMTPSenderGivesUpOnUnreachableServer(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    1,
		From:    "no-reply@teenbudget.local",
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	defer s.Close()

	if err := s.Send(context.Background(), "a@x.com", "s", "<p>b</p>"); err == nil {
		t.Fatal("expected delivery to fail")
	}
}

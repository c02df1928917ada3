package notification

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateEmailVerification, map[string]string{
		"name":        "Ana",
		"verify_link": "https://app.example.com/verify?token=abc",
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if subject != "Verify your email address" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "Hello Ana") || !strings.Contains(body, "token=abc") {
		t.Errorf("placeholders not replaced: %q", body)
	}
	if !strings.Contains(body, "{{expires_in}}") {
		t.Errorf("expected missing key left as-is: %q", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_RegisterTemplate(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: TemplateWelcome, Subject: "Hi {{name}}", Body: "b"})
	subject, _, err := e.Render(TemplateWelcome, map[string]string{"name": "Rui"})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if subject != "Hi Rui" {
		t.Errorf("expected replaced template, got %q", subject)
	}
}

func TestNotifier_SendFromTemplate(t *testing.T) {
	mock := &MockEmailSender{}
	n := NewNotifier(mock, nil)

	if err := n.SendFromTemplate(context.Background(), TemplateWelcome, map[string]string{"name": "Ana"}, "ana@example.com"); err != nil {
		t.Fatalf("SendFromTemplate() error: %v", err)
	}
	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "ana@example.com" || !strings.Contains(calls[0].Body, "Ana") {
		t.Errorf("unexpected call %+v", calls[0])
	}
}

func TestNotifier_Errors(t *testing.T) {
	mock := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	n := NewNotifier(mock, nil)

	if err := n.SendFromTemplate(context.Background(), TemplateWelcome, nil, ""); err == nil {
		t.Error("expected error for empty recipient")
	}
	err := n.SendFromTemplate(context.Background(), TemplateWelcome, nil, "a@example.com")
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Errorf("expected sender error, got %v", err)
	}
}

func TestLogEmailSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogEmailSender(zerolog.New(&buf))
	if err := s.SendEmail(context.Background(), "a@example.com", "subj", "body"); err != nil {
		t.Fatalf("SendEmail() error: %v", err)
	}
	if !strings.Contains(buf.String(), `"to":"a@example.com"`) {
		t.Errorf("expected recipient in log, got %s", buf.String())
	}
}

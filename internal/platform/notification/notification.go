// Package notification renders email templates and hands the result to an
// EmailSender.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Template IDs registered by NewTemplateEngine.
const (
	TemplateEmailVerification = "email-verification"
	TemplateWelcome           = "welcome"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable email template. Placeholders use the
// {{key}} form.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateEmailVerification,
		Subject: "Verify your email address",
		Body:    "Hello {{name}}, confirm your email address by opening {{verify_link}}. The link expires in {{expires_in}}.",
	})
	e.RegisterTemplate(Template{
		ID:      TemplateWelcome,
		Subject: "Welcome to WoundCare",
		Body:    "Hello {{name}}, your account has been created.",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Notifier sends rendered templates.
type Notifier struct {
	email     EmailSender
	templates *TemplateEngine
}

// NewNotifier constructs a Notifier. A nil engine uses NewTemplateEngine.
func NewNotifier(email EmailSender, tpl *TemplateEngine) *Notifier {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Notifier{email: email, templates: tpl}
}

// SendFromTemplate renders a template and emails it to recipient.
func (n *Notifier) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) error {
	if recipient == "" {
		return errors.New("recipient is required")
	}
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := n.email.SendEmail(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}

// LogEmailSender writes emails to the log instead of delivering them. It is
// the sender used when no mail transport is configured.
type LogEmailSender struct {
	logger zerolog.Logger
}

// NewLogEmailSender creates a LogEmailSender.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "mailer").Logger()}
}

// SendEmail logs the message.
func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

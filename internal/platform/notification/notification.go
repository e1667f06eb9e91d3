// Package notification renders and dispatches the outbound emails: doctor
// review alerts and password reset codes.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Template IDs.
const (
	TemplateDoctorAlert    = "doctor-alert"
	TemplatePasswordReset  = "password-reset"
	TemplateDiagnosisReady = "diagnosis-ready"
)

// Notification records a single outbound email and its delivery outcome.
type Notification struct {
	ID         string     `json:"id"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// EmailSender delivers a plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// DoctorAlerter notifies a doctor that a patient needs review.
type DoctorAlerter interface {
	SendDoctorAlert(ctx context.Context, email string, patientID int64, urgency string) error
}

// PasswordResetMailer delivers password reset codes.
type PasswordResetMailer interface {
	SendPasswordReset(ctx context.Context, email, code string, expiresIn time.Duration) error
}

// Template defines a reusable email template with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
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
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateDoctorAlert,
			Name:    "Doctor Review Alert",
			Subject: "Patient Review Required - Urgency: {{urgency}}",
			Body:    "Patient ID {{patient_id}} requires your immediate attention.",
		},
		{
			ID:      TemplatePasswordReset,
			Name:    "Password Reset",
			Subject: "Password Reset Request",
			Body:    "Your HealthGuard password reset code is {{code}}. It expires in {{expires_in}}. If you did not request a reset, you can ignore this email.",
		},
		{
			ID:      TemplateDiagnosisReady,
			Name:    "Diagnosis Results Available",
			Subject: "Diagnosis Results Available",
			Body:    "Dear {{patient_name}}, your diagnosis results are now available.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys
// present in the template but absent from data are left as-is.
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

// Manager renders templates and hands the result to an EmailSender. It
// implements DoctorAlerter and PasswordResetMailer.
type Manager struct {
	email     EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

func NewManager(email EmailSender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{email: email, templates: tpl, logger: logger}
}

// Send dispatches n, filling in its ID, timestamps and status.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	if strings.TrimSpace(n.Recipient) == "" {
		n.Status = "failed"
		n.Error = "recipient is required"
		return errors.New(n.Error)
	}

	if err := m.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body); err != nil {
		n.Status = "failed"
		n.Error = err.Error()
		m.logger.Warn().Err(err).
			Str("notification_id", n.ID).
			Str("template", n.TemplateID).
			Msg("email delivery failed")
		return err
	}

	sentAt := time.Now().UTC()
	n.SentAt = &sentAt
	n.Status = "sent"
	m.logger.Info().
		Str("notification_id", n.ID).
		Str("template", n.TemplateID).
		Msg("email sent")
	return nil
}

// SendFromTemplate renders a template and sends the resulting email. The
// notification is returned even when delivery fails.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

func (m *Manager) SendDoctorAlert(ctx context.Context, email string, patientID int64, urgency string) error {
	_, err := m.SendFromTemplate(ctx, TemplateDoctorAlert, map[string]string{
		"patient_id": strconv.FormatInt(patientID, 10),
		"urgency":    urgency,
	}, email)
	return err
}

func (m *Manager) SendPasswordReset(ctx context.Context, email, code string, expiresIn time.Duration) error {
	_, err := m.SendFromTemplate(ctx, TemplatePasswordReset, map[string]string{
		"code":       code,
		"expires_in": fmt.Sprintf("%d minutes", int(expiresIn.Minutes())),
	}, email)
	return err
}

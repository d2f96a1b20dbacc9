package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/config"
)

// Email is a rendered message ready for delivery.
type Email struct {
	ToAddress string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error

	// Name identifies the delivery channel in logs and metrics.
	Name() string
}

// NewMailer builds the mailer selected by cfg.Provider.
func NewMailer(cfg config.EmailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "", "none":
		return NopMailer{}, nil
	case "log":
		return NewLogMailer(logger), nil
	case "smtp":
		return withBreaker(NewSMTPMailer(cfg), cfg.Breaker, logger), nil
	case "sendgrid":
		return withBreaker(NewSendGridMailer(cfg), cfg.Breaker, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

func withBreaker(m Mailer, cfg config.BreakerConfig, logger *zap.Logger) Mailer {
	return NewBreakerMailer(m, cfg.FailureThreshold, cfg.SuccessThreshold, cfg.Cooldown, logger)
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <p>Hi {{.Name}},</p>
  <h2 style="color: #1e3a8a;">{{.Title}}</h2>
  <p>{{.Message}}</p>
  <p style="font-size: 12px; color: #6b7280;">You are receiving this because email notifications are enabled on your account.</p>
</body>
</html>`))

// Render builds the email copy of an in-app notification.
func Render(subjectPrefix, toAddress, toName, title, message string) (Email, error) {
	var html bytes.Buffer
	err := emailTemplate.Execute(&html, struct {
		Name    string
		Title   string
		Message string
	}{toName, title, message})
	if err != nil {
		return Email{}, fmt.Errorf("render email: %w", err)
	}

	subject := title
	if p := strings.TrimSpace(subjectPrefix); p != "" {
		subject = p + " " + title
	}
	return Email{
		ToAddress: toAddress,
		ToName:    toName,
		Subject:   subject,
		Text:      fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n", toName, title, message),
		HTML:      html.String(),
	}, nil
}

// NopMailer discards every message.
type NopMailer struct{}

// Send implements Mailer.
func (NopMailer) Send(context.Context, Email) error { return nil }

// Name implements Mailer.
func (NopMailer) Name() string { return "none" }

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg Email) error {
	m.logger.Info("email",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

// Name implements Mailer.
func (m *LogMailer) Name() string { return "log" }

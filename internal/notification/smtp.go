package notification

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/FallSteph/Syllabuksu/internal/config"
)

// SMTPMailer sends email through an SMTP relay with mandatory STARTTLS.
type SMTPMailer struct {
	from   string
	dialer *mail.Dialer
}

// NewSMTPMailer creates an SMTPMailer. The password is read from the
// environment variable named in cfg.
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	d := mail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password())
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTP.Host,
		InsecureSkipVerify: cfg.SMTP.SkipTLSVerify, //nolint:gosec // opt-in for development relays
	}
	if cfg.SendTimeout > 0 {
		d.Timeout = cfg.SendTimeout
	}

	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &SMTPMailer{from: from, dialer: d}
}

// Send implements Mailer. go-mail has no context support, so ctx is only
// checked before dialling.
func (m *SMTPMailer) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mm := mail.NewMessage()
	mm.SetHeader("From", m.from)
	mm.SetAddressHeader("To", msg.ToAddress, msg.ToName)
	mm.SetHeader("Subject", msg.Subject)
	mm.SetBody("text/plain", msg.Text)
	mm.AddAlternative("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(mm); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.ToAddress, err)
	}
	return nil
}

// Name implements Mailer.
func (m *SMTPMailer) Name() string { return "smtp" }

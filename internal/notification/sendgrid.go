package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/FallSteph/Syllabuksu/internal/config"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendGridMailer creates a SendGridMailer. The API key is read from the
// environment variable named in cfg.
func NewSendGridMailer(cfg config.EmailConfig) *SendGridMailer {
	return &SendGridMailer{
		key:  cfg.SendGrid.APIKey(),
		host: cfg.SendGrid.Host,
		from: sgmail.NewEmail(cfg.FromName, cfg.From),
	}
}

func (m *SendGridMailer) prepare(msg Email) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return v3
}

// Send implements Mailer. The SendGrid client takes no context, so ctx is
// only checked before the request is made.
func (m *SendGridMailer) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(m.key, sendGridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", msg.ToAddress, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send to %s: status %d: %s", msg.ToAddress, res.StatusCode, res.Body)
	}
	return nil
}

// Name implements Mailer.
func (m *SendGridMailer) Name() string { return "sendgrid" }

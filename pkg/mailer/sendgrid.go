package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridMailer delivers notification emails through the SendGrid v3 API.
type SendGridMailer struct {
	key  string
	from *sgmail.Email
}

// NewSendGridMailer constructs a SendGrid-backed mailer.
func NewSendGridMailer(key, fromName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
	}
}

// SendBatch sends one personalization per recipient so addresses are not
// exposed to each other.
func (m *SendGridMailer) SendBatch(ctx context.Context, recipients []Recipient, content Content) (DeliveryResult, error) {
	result := DeliveryResult{}
	if len(recipients) == 0 {
		return result, nil
	}

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.Subject = content.Subject

	for _, rcpt := range recipients {
		if rcpt.Email == "" {
			result.Failed++
			continue
		}
		p := sgmail.NewPersonalization()
		p.AddTos(sgmail.NewEmail(rcpt.Name, rcpt.Email))
		msg.AddPersonalizations(p)
	}
	if len(msg.Personalizations) == 0 {
		return result, nil
	}

	msg.AddContent(
		sgmail.NewContent("text/plain", renderPlainText(content)),
	)

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)

	res, err := sendgrid.API(req)
	if err != nil {
		result.Failed += len(msg.Personalizations)
		return result, fmt.Errorf("sendgrid api: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		result.Failed += len(msg.Personalizations)
		return result, fmt.Errorf("sendgrid api: status %d", res.StatusCode)
	}

	result.Sent = len(msg.Personalizations)
	return result, nil
}

func renderPlainText(content Content) string {
	body := content.Title + "\n\n" + content.Message
	if content.TitleAlt != "" || content.MessageAlt != "" {
		body += "\n\n---\n\n" + content.TitleAlt + "\n\n" + content.MessageAlt
	}
	return body
}

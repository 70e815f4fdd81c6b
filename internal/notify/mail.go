package notify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is a plain e-mail to one recipient.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Sender is the From address of outgoing mail.
type Sender struct {
	Name    string
	Address string
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	from   Sender
	client *sendgrid.Client
}

func NewSendGridMailer(apiKey string, from Sender) *SendGridMailer {
	return &SendGridMailer{from: from, client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGridMailer) Send(ctx context.Context, m Message) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Address),
		m.Subject,
		mail.NewEmail(m.ToName, m.To),
		m.Text,
		m.HTML,
	)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return errors.Wrap(err, "sendgrid")
	}
	if resp.StatusCode >= 300 {
		return errors.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// PostmarkMailer sends through the Postmark API.
type PostmarkMailer struct {
	from   Sender
	client *postmark.Client
}

func NewPostmarkMailer(serverToken string, from Sender) *PostmarkMailer {
	return &PostmarkMailer{from: from, client: postmark.NewClient(serverToken, "")}
}

func (p *PostmarkMailer) Send(_ context.Context, m Message) error {
	resp, err := p.client.SendEmail(postmark.Email{
		From:     p.from.Address,
		To:       m.To,
		Subject:  m.Subject,
		HtmlBody: m.HTML,
		TextBody: m.Text,
		Tag:      "order",
	})
	if err != nil {
		return errors.Wrap(err, "postmark")
	}
	if resp.ErrorCode != 0 {
		return errors.Errorf("postmark: code %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, m Message) error {
	zctx.From(ctx).Info("Mail",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("text", m.Text),
	)
	return nil
}

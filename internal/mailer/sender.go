package mailer

import (
	"context"
	"errors"
	"net/url"

	"github.com/resend/resend-go/v2"
)

var ErrNoAPIKey = errors.New("mailer: resend API key is not configured")

// Sender delivers a rendered message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type ResendSender struct {
	client *resend.Client
}

// NewResendSender builds a Resend-backed sender. baseURL overrides the API
// endpoint and may be nil.
func NewResendSender(apiKey string, baseURL *url.URL) (*ResendSender, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client := resend.NewClient(apiKey)
	if baseURL != nil {
		client.BaseURL = baseURL
	}
	return &ResendSender{client: client}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

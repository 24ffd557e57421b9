// Package mailgun delivers email through the Mailgun HTTP API.
package mailgun

import (
	"context"
	"fmt"

	"github.com/go-api-accounts/internal/pkg/mailtext"
	mg "github.com/mailgun/mailgun-go/v4"
)

type Sender struct {
	client mg.Mailgun
	sender string
}

func NewSender(domain, apiKey, sender string) *Sender {
	return &Sender{client: mg.NewMailgun(domain, apiKey), sender: sender}
}

func (s *Sender) SendActivationEmail(ctx context.Context, to, link string) error {
	body, err := mailtext.Activation(link)
	if err != nil {
		return err
	}
	return s.SendEmail(ctx, to, mailtext.ActivationSubject, body)
}

func (s *Sender) SendEmail(ctx context.Context, to, subject, text string) error {
	msg := s.client.NewMessage(s.sender, subject, text, to)
	if _, _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

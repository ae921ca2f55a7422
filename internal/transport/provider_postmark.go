package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/mrz1836/postmark"
)

var ErrPostmarkNotConfigured = errors.New("postmark provider requires server token and sender")

// PostmarkClient is the subset of *postmark.Client used here.
type PostmarkClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkProvider struct {
	client PostmarkClient
	from   string
}

func NewPostmarkProvider(serverToken, accountToken, from string) (*PostmarkProvider, error) {
	if serverToken == "" || from == "" {
		return nil, ErrPostmarkNotConfigured
	}
	return &PostmarkProvider{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

func (p *PostmarkProvider) Name() string { return "postmark" }

func (p *PostmarkProvider) Send(ctx context.Context, d Delivery) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       d.To,
		Subject:  "New message",
		Tag:      string(d.Type),
		TextBody: d.Content,
		Metadata: map[string]string{"message_id": d.MessageID},
	})
	if err != nil {
		return err
	}
	if resp.ErrorCode > 0 {
		// Postmark API error codes are request problems, not outages.
		return backoff.Permanent(fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

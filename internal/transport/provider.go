package transport

import (
	"context"

	"github.com/example/multichannel/internal/messaging"
)

// Delivery is what an email provider needs to hand one message over.
type Delivery struct {
	MessageID string
	Type      messaging.MediaType
	Content   string
	To        string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, d Delivery) error
}

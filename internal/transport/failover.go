package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/multichannel/internal/messaging"
)

var ErrNoProviders = errors.New("at least one provider required")

// AddressResolver maps a recipient id to a provider address for a variant.
type AddressResolver func(v messaging.Variant, recipientID string) (string, error)

// Failover delivers through the first provider that accepts the message.
// Each provider is retried with exponential backoff for at most MaxElapsed
// before the next one is tried.
type Failover struct {
	Variant     messaging.Variant
	Providers   []Provider
	Resolve     AddressResolver
	BroadcastTo string
	MaxElapsed  time.Duration
	Logger      zerolog.Logger
}

func (f *Failover) Name() string { return "failover:" + string(f.Variant) }

func (f *Failover) Send(ctx context.Context, m messaging.Message) error {
	if len(f.Providers) == 0 {
		return ErrNoProviders
	}
	to, err := f.address(m)
	if err != nil {
		return err
	}
	d := Delivery{MessageID: m.ID, Type: m.Type, Content: m.Content, To: to}

	var errs []error
	for _, provider := range f.Providers {
		if err := f.deliverWithProvider(ctx, provider, d); err != nil {
			f.Logger.Warn().Err(err).Str("provider", provider.Name()).Str("message_id", m.ID).Msg("provider send failed")
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (f *Failover) address(m messaging.Message) (string, error) {
	if m.IsBroadcast() {
		if f.BroadcastTo == "" {
			return "", errors.New("no broadcast address configured")
		}
		return f.BroadcastTo, nil
	}
	if f.Resolve == nil {
		return m.RecipientID(), nil
	}
	to, err := f.Resolve(f.Variant, m.RecipientID())
	if err != nil {
		return "", fmt.Errorf("resolve address: %w", err)
	}
	return to, nil
}

func (f *Failover) deliverWithProvider(ctx context.Context, provider Provider, d Delivery) error {
	op := backoff.NewExponentialBackOff()
	op.MaxElapsedTime = f.MaxElapsed
	if op.MaxElapsedTime == 0 {
		op.MaxElapsedTime = 5 * time.Second
	}
	return backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return provider.Send(attemptCtx, d)
	}, backoff.WithContext(op, ctx))
}

// Package relay turns inbound message events from Kafka into routed messages.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/multichannel/internal/common"
	"github.com/example/multichannel/internal/messaging"
)

var relayedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_events_total",
	Help: "Inbound message events consumed by the relay, by result",
}, []string{"result"})

// Reader is the subset of *kafka.Reader the relay consumes from.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Directory resolves recipient ids to users.
type Directory interface {
	Lookup(id string) (*messaging.User, error)
}

// Channels resolves channel names to channels.
type Channels interface {
	Lookup(name string) (*messaging.Channel, error)
}

// Event is one inbound message request. An empty RecipientID means the
// content is broadcast on every registered channel.
type Event struct {
	RecipientID string              `json:"recipient_id"`
	Channel     string              `json:"channel"`
	Type        messaging.MediaType `json:"type"`
	Content     string              `json:"content"`
}

type Relay struct {
	ReaderFactory func() Reader
	Router        *messaging.Router
	Channels      Channels
	Users         Directory
	Logger        zerolog.Logger
}

// Run consumes events until ctx is cancelled or the reader fails. Events
// that cannot be routed are logged and committed so they never block the
// partition.
func (r *Relay) Run(ctx context.Context) error {
	if r.ReaderFactory == nil || r.Router == nil || r.Channels == nil || r.Users == nil {
		return errors.New("relay requires reader factory, router, channels and users")
	}
	reader := r.ReaderFactory()
	defer reader.Close()

	tracer := otel.Tracer("relay")

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		spanCtx, span := tracer.Start(common.ExtractKafka(ctx, m), "relay")
		result, err := r.handle(spanCtx, m.Value)
		span.SetAttributes(attribute.String("result", result))
		if err != nil {
			span.RecordError(err)
			logger := common.WithContext(spanCtx, r.Logger)
			logger.Warn().Err(err).Int64("offset", m.Offset).Msg("dropping inbound event")
		}
		span.End()
		relayedCounter.WithLabelValues(result).Inc()

		if err := reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

func (r *Relay) handle(ctx context.Context, raw []byte) (string, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "invalid", fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return "invalid", errors.New("event has no media type")
	}

	if ev.RecipientID == "" {
		msg := r.Router.CreateBroadcastMessage(ev.Type, ev.Content)
		if _, err := r.Router.Save(ctx, msg); err != nil {
			r.Logger.Warn().Err(err).Str("message_id", msg.ID).Msg("payload not saved")
		}
		r.Router.Broadcast(ctx, msg)
		return "broadcast", nil
	}

	to, err := r.Users.Lookup(ev.RecipientID)
	if err != nil {
		return "unknown_recipient", err
	}
	ch, err := r.Channels.Lookup(ev.Channel)
	if err != nil {
		return "unknown_channel", err
	}
	msg := r.Router.CreateMessage(ev.Type, ev.Content, to)
	if _, err := r.Router.Save(ctx, msg); err != nil {
		r.Logger.Warn().Err(err).Str("message_id", msg.ID).Msg("payload not saved")
	}
	return r.Router.Send(ctx, msg, ch).String(), nil
}

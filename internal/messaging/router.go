package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Router creates messages and routes them to channels. It holds references
// to channels but no message state of its own.
type Router struct {
	logger zerolog.Logger
	newID  func() string
	store  PayloadStore
	tracer trace.Tracer

	mu       sync.RWMutex
	channels []Deliverer
}

type Option func(*Router)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithIDGenerator replaces uuid.NewString. The generator must never repeat.
func WithIDGenerator(gen func() string) Option {
	return func(r *Router) { r.newID = gen }
}

func WithPayloadStore(s PayloadStore) Option {
	return func(r *Router) { r.store = s }
}

func NewRouter(opts ...Option) *Router {
	r := &Router{
		logger: zerolog.Nop(),
		newID:  uuid.NewString,
		store:  noopStore{},
		tracer: otel.Tracer("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddChannel registers ch for broadcasts. A channel whose variant is already
// registered is ignored.
func (r *Router) AddChannel(ch Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.channels {
		if existing.Variant() == ch.Variant() {
			return
		}
	}
	r.channels = append(r.channels, ch)
	r.logger.Info().Str("channel", ch.Variant().Label()).Msg("server added channel")
}

func (r *Router) Channels() []Deliverer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Deliverer, len(r.channels))
	copy(out, r.channels)
	return out
}

func (r *Router) CreateMessage(typ MediaType, content string, to *User) Message {
	m := NewMessage(r.newID(), typ, content, to)
	r.logger.Info().Str("message_id", m.ID).Str("content", content).Str("recipient_id", m.RecipientID()).Msg("server created new message")
	return m
}

func (r *Router) CreateBroadcastMessage(typ MediaType, content string) Message {
	m := NewMessage(r.newID(), typ, content, nil)
	r.logger.Info().Str("message_id", m.ID).Str("content", content).Msg("server created new broadcast message")
	return m
}

// Send hands m to ch when m's recipient currently subscribes to ch's variant.
// Ineligible messages are dropped and reported only through the trace log
// and the returned outcome.
func (r *Router) Send(ctx context.Context, m Message, ch Deliverer) Outcome {
	ctx, span := r.tracer.Start(ctx, "send")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", m.ID),
		attribute.String("channel", string(ch.Variant())),
	)

	if to := m.Recipient(); to != nil && !to.Subscribed(ch) {
		r.logger.Warn().
			Str("message_id", m.ID).
			Str("recipient_id", to.ID()).
			Str("channel", ch.Variant().Label()).
			Msg("recipient not subscribed, message dropped")
		sendCounter.WithLabelValues("send", OutcomeIneligible.String()).Inc()
		return OutcomeIneligible
	}

	r.logger.Info().Str("message_id", m.ID).Str("channel", ch.Variant().Label()).Msg("message sent on channel")
	out := ch.Accept(ctx, m)
	span.SetAttributes(attribute.String("outcome", out.String()))
	sendCounter.WithLabelValues("send", out.String()).Inc()
	return out
}

// Broadcast accepts m on every registered channel, ignoring subscriptions.
func (r *Router) Broadcast(ctx context.Context, m Message) map[Variant]Outcome {
	ctx, span := r.tracer.Start(ctx, "broadcast")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", m.ID))

	r.logger.Info().Str("message_id", m.ID).Msg("message broadcasting on all channels")
	outcomes := make(map[Variant]Outcome)
	for _, ch := range r.Channels() {
		out := ch.Accept(ctx, m)
		outcomes[ch.Variant()] = out
		sendCounter.WithLabelValues("broadcast", out.String()).Inc()
	}
	return outcomes
}

// Save persists m's payload through the configured store.
func (r *Router) Save(ctx context.Context, m Message) (string, error) {
	ref, err := r.store.Store(ctx, m.Type, m.Content)
	if err != nil {
		return "", fmt.Errorf("store payload for %s: %w", m.ID, err)
	}
	return ref, nil
}

package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Deliverer is the capability every channel exposes to routers and users.
type Deliverer interface {
	Variant() Variant
	Accept(ctx context.Context, m Message) Outcome
	Drain(recipient *User) []Message
}

// Transport performs the real network hand-off for a variant. A Send error
// is treated as the channel being unavailable for that attempt.
type Transport interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// PayloadStore persists message payloads and returns a reference to them.
type PayloadStore interface {
	Store(ctx context.Context, typ MediaType, content string) (string, error)
}

// FailureRecord is emitted once per (variant, message) when retries are
// exhausted.
type FailureRecord struct {
	Variant     Variant   `json:"channel"`
	MessageID   string    `json:"message_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	MediaType   MediaType `json:"media_type"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	FirstFailed time.Time `json:"first_failed_at"`
	FailedAt    time.Time `json:"failed_at"`
}

// FailureSink receives permanent-failure records. Implementations must not
// block the caller for long; channels call it while no lock is held.
type FailureSink interface {
	RecordFailure(ctx context.Context, rec FailureRecord)
}

// FailureSinkFunc adapts a function to FailureSink.
type FailureSinkFunc func(ctx context.Context, rec FailureRecord)

func (f FailureSinkFunc) RecordFailure(ctx context.Context, rec FailureRecord) { f(ctx, rec) }

// LogSink writes every failure record as a structured error event.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) RecordFailure(_ context.Context, rec FailureRecord) {
	s.Logger.Error().
		Str("channel", rec.Variant.Label()).
		Str("message_id", rec.MessageID).
		Str("recipient_id", rec.RecipientID).
		Int("attempts", rec.Attempts).
		Str("last_error", rec.LastError).
		Time("first_failed_at", rec.FirstFailed).
		Msg("message delivery failed permanently")
}

type noopStore struct{}

func (noopStore) Store(context.Context, MediaType, string) (string, error) { return "", nil }

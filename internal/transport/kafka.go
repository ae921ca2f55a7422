package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/multichannel/internal/common"
	"github.com/example/multichannel/internal/messaging"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Event is the wire form of an accepted message on a variant topic.
type Event struct {
	MessageID   string              `json:"message_id"`
	Channel     messaging.Variant   `json:"channel"`
	RecipientID string              `json:"recipient_id,omitempty"`
	Broadcast   bool                `json:"broadcast"`
	Type        messaging.MediaType `json:"type"`
	Content     string              `json:"content"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Kafka hands accepted messages to the downstream gateway consumers of the
// variant's dispatch topic.
type Kafka struct {
	Writer  MessageWriter
	Variant messaging.Variant
}

func (k *Kafka) Name() string { return "kafka:" + TopicForVariant(k.Variant) }

func (k *Kafka) Send(ctx context.Context, m messaging.Message) error {
	body, err := json.Marshal(Event{
		MessageID:   m.ID,
		Channel:     k.Variant,
		RecipientID: m.RecipientID(),
		Broadcast:   m.IsBroadcast(),
		Type:        m.Type,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(m.RecipientID() + ":" + m.ID),
		Value: body,
	}
	common.InjectKafka(ctx, &msg)
	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", TopicForVariant(k.Variant), err)
	}
	return nil
}

func TopicForVariant(v messaging.Variant) string {
	switch v {
	case messaging.VariantEmail:
		return "dispatch.email"
	case messaging.VariantSMS:
		return "dispatch.sms"
	case messaging.VariantWhatsApp:
		return "dispatch.wa"
	default:
		return ""
	}
}

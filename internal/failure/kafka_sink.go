package failure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/multichannel/internal/common"
	"github.com/example/multichannel/internal/messaging"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes permanent-failure records to the dead letter topic.
type KafkaSink struct {
	Writer MessageWriter
	Logger zerolog.Logger
}

func (s *KafkaSink) RecordFailure(ctx context.Context, rec messaging.FailureRecord) {
	if err := s.write(ctx, rec); err != nil {
		s.Logger.Error().Err(err).Str("message_id", rec.MessageID).Msg("failed to write dlq record")
	}
}

func (s *KafkaSink) write(ctx context.Context, rec messaging.FailureRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dlq record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(string(rec.Variant) + ":" + rec.MessageID),
		Value: payload,
	}
	common.InjectKafka(ctx, &msg)
	return s.Writer.WriteMessages(ctx, msg)
}

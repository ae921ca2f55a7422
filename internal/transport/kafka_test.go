package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/multichannel/internal/messaging"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestTopicForVariant(t *testing.T) {
	cases := map[messaging.Variant]string{
		messaging.VariantEmail:    "dispatch.email",
		messaging.VariantSMS:      "dispatch.sms",
		messaging.VariantWhatsApp: "dispatch.wa",
		"pigeon":                  "",
	}

	for input, expected := range cases {
		assert.Equal(t, expected, TopicForVariant(input), string(input))
	}
}

func TestKafka_Send(t *testing.T) {
	w := &captureWriter{}
	k := &Kafka{Writer: w, Variant: messaging.VariantSMS}
	u := messaging.NewUser("ram", "Ram", "", "")

	require.NoError(t, k.Send(context.Background(), messaging.NewMessage("m1", messaging.MediaText, "hi", u)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ram:m1", string(w.msgs[0].Key))

	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, messaging.VariantSMS, ev.Channel)
	assert.Equal(t, "ram", ev.RecipientID)
	assert.False(t, ev.Broadcast)
	assert.Equal(t, "kafka:dispatch.sms", k.Name())
}

func TestKafka_SendWriteError(t *testing.T) {
	k := &Kafka{Writer: &captureWriter{err: errors.New("broker down")}, Variant: messaging.VariantWhatsApp}
	err := k.Send(context.Background(), messaging.NewMessage("m1", messaging.MediaText, "hi", nil))
	assert.ErrorContains(t, err, "dispatch.wa")
}

func TestKafka_SendCarriesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	w := &captureWriter{}
	k := &Kafka{Writer: w, Variant: messaging.VariantEmail}
	require.NoError(t, k.Send(ctx, messaging.NewMessage("m1", messaging.MediaText, "hi", nil)))
	require.Len(t, w.msgs, 1)

	var traceparent string
	for _, h := range w.msgs[0].Headers {
		if h.Key == "traceparent" {
			traceparent = string(h.Value)
		}
	}
	assert.Equal(t, "00-0102030405060708090a0b0c0d0e0f10-0102030405060708-01", traceparent)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/multichannel/internal/messaging"
)

var providerEventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "provider_health_events_total",
	Help: "Provider health webhooks processed",
}, []string{"provider", "status"})

// HealthEvent is a provider status webhook reduced to a channel availability
// transition.
type HealthEvent struct {
	Provider  string
	Variant   messaging.Variant
	Available bool
	Status    string
}

type providerRoute struct {
	variant     messaging.Variant
	statusField string
}

var providers = map[string]providerRoute{
	"ses":      {variant: messaging.VariantEmail, statusField: "event"},
	"sendgrid": {variant: messaging.VariantEmail, statusField: "event"},
	"postmark": {variant: messaging.VariantEmail, statusField: "Status"},
	"twilio":   {variant: messaging.VariantSMS, statusField: "status"},
	"meta":     {variant: messaging.VariantWhatsApp, statusField: "status"},
}

func (h *Handler) providerEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		providerEventCounter.WithLabelValues(provider, "error").Inc()
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}
	event, err := normalizeHealthEvent(provider, payload)
	if err != nil {
		providerEventCounter.WithLabelValues(provider, "error").Inc()
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("provider", event.Provider),
		attribute.String("channel", string(event.Variant)),
	)

	state := messaging.Unavailable
	if event.Available {
		state = messaging.Available
	}
	ch := h.registry.Channel(event.Variant)
	h.setState(ctx, ch, state)

	providerEventCounter.WithLabelValues(provider, "ok").Inc()
	h.respond(w, http.StatusAccepted, ch.Status())
}

func normalizeHealthEvent(provider string, payload map[string]any) (HealthEvent, error) {
	route, ok := providers[provider]
	if !ok {
		return HealthEvent{}, errors.New("unsupported provider")
	}
	status, _ := payload[route.statusField].(string)
	if status == "" {
		return HealthEvent{}, fmt.Errorf("%s %s missing", provider, route.statusField)
	}
	ev := HealthEvent{Provider: provider, Variant: route.variant, Status: status}
	switch strings.ToLower(status) {
	case "operational", "up", "recovered", "resolved":
		ev.Available = true
	case "outage", "down", "degraded", "major_outage":
		ev.Available = false
	default:
		return HealthEvent{}, fmt.Errorf("%s status %q not understood", provider, status)
	}
	return ev, nil
}

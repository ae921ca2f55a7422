package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, err := h.users.Lookup(req.RecipientID)
	if err != nil {
		h.respondErr(ctx, w, http.StatusNotFound, err)
		return
	}
	ch, err := h.registry.Lookup(req.Channel)
	if err != nil {
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}

	msg := h.router.CreateMessage(req.Type, req.Content, to)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("message.id", msg.ID))
	ref, err := h.router.Save(ctx, msg)
	if err != nil {
		h.respondErr(ctx, w, http.StatusBadGateway, err)
		return
	}
	out := h.router.Send(ctx, msg, ch)

	h.respond(w, http.StatusAccepted, map[string]any{
		"message_id":  msg.ID,
		"outcome":     out,
		"payload_ref": ref,
	})
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BroadcastRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg := h.router.CreateBroadcastMessage(req.Type, req.Content)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("message.id", msg.ID))
	ref, err := h.router.Save(ctx, msg)
	if err != nil {
		h.respondErr(ctx, w, http.StatusBadGateway, err)
		return
	}
	outcomes := h.router.Broadcast(ctx, msg)

	h.respond(w, http.StatusAccepted, map[string]any{
		"message_id":  msg.ID,
		"outcomes":    outcomes,
		"payload_ref": ref,
	})
}

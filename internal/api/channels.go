package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/multichannel/internal/messaging"
)

func (h *Handler) listChannels(w http.ResponseWriter, _ *http.Request) {
	channels := h.registry.Channels()
	out := make([]messaging.Status, len(channels))
	for i, ch := range channels {
		out[i] = ch.Status()
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.lookupChannel(w, r)
	if !ok {
		return
	}
	var req AvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	state := messaging.Unavailable
	if *req.Available {
		state = messaging.Available
	}
	h.setState(r.Context(), ch, state)
	h.respond(w, http.StatusOK, ch.Status())
}

func (h *Handler) retryPending(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.lookupChannel(w, r)
	if !ok {
		return
	}
	n := ch.RetryPending(r.Context())
	h.respond(w, http.StatusOK, map[string]any{
		"redelivered": n,
		"status":      ch.Status(),
	})
}

func (h *Handler) cancelRetry(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.lookupChannel(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "messageID")
	if !ch.CancelRetry(id) {
		h.respondErr(r.Context(), w, http.StatusNotFound, errors.New("no pending retry for "+id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

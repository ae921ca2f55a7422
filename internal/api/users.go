package api

import (
	"net/http"
)

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u := h.users.Create(req.Name, req.Email, req.Phone)
	h.respond(w, http.StatusCreated, userResponse(u))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, userResponse(u))
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	ch, ok := h.lookupChannel(w, r)
	if !ok {
		return
	}
	u.Subscribe(ch)
	h.respond(w, http.StatusOK, userResponse(u))
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	ch, ok := h.lookupChannel(w, r)
	if !ok {
		return
	}
	u.Unsubscribe(ch)
	h.respond(w, http.StatusOK, userResponse(u))
}

// receive drains the channel for the user. Unsubscribed users get an empty
// list, never an error.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	ch, ok := h.lookupChannel(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"channel":  ch.Variant(),
		"messages": messageResponses(u.Receive(ch)),
	})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/multichannel/internal/common"
	"github.com/example/multichannel/internal/directory"
	"github.com/example/multichannel/internal/messaging"
)

var (
	reqCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of API requests by route and status",
	}, []string{"route", "status"})
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Latency for API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Directory is the user store the API creates and resolves recipients in.
type Directory interface {
	Create(name, email, phone string) *messaging.User
	Lookup(id string) (*messaging.User, error)
}

type Handler struct {
	router   *messaging.Router
	registry *messaging.Registry
	users    Directory
	tracer   trace.Tracer
	logger   zerolog.Logger

	background sync.WaitGroup
}

func NewHandler(router *messaging.Router, registry *messaging.Registry, users Directory, logger zerolog.Logger) *Handler {
	return &Handler{
		router:   router,
		registry: registry,
		users:    users,
		tracer:   otel.Tracer("api"),
		logger:   logger,
	}
}

// Wait blocks until redeliveries started by availability changes finish.
func (h *Handler) Wait() { h.background.Wait() }

// setState applies a requested availability. A recovery re-offers the
// channel's parked messages in the background, since each one may spend
// the transport's whole backoff budget.
func (h *Handler) setState(ctx context.Context, ch *messaging.Channel, a messaging.Availability) {
	if !ch.SetState(a) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		n := ch.RetryPending(ctx)
		logger := common.WithContext(ctx, h.logger)
		logger.Info().Str("channel", ch.Variant().Label()).Int("redelivered", n).Msg("channel recovered")
	}()
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", h.instrument("create_user", h.createUser))
		r.Get("/users/{userID}", h.instrument("get_user", h.getUser))
		r.Put("/users/{userID}/subscriptions/{variant}", h.instrument("subscribe", h.subscribe))
		r.Delete("/users/{userID}/subscriptions/{variant}", h.instrument("unsubscribe", h.unsubscribe))
		r.Post("/users/{userID}/channels/{variant}/receive", h.instrument("receive", h.receive))

		r.Post("/messages", h.instrument("send", h.send))
		r.Post("/broadcasts", h.instrument("broadcast", h.broadcast))

		r.Get("/channels", h.instrument("list_channels", h.listChannels))
		r.Put("/channels/{variant}/availability", h.instrument("set_availability", h.setAvailability))
		r.Post("/channels/{variant}/retry", h.instrument("retry", h.retryPending))
		r.Delete("/channels/{variant}/retries/{messageID}", h.instrument("cancel_retry", h.cancelRetry))

		r.Post("/providers/{provider}/events", h.instrument("provider_event", h.providerEvent))
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), route)
		defer span.End()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))
		reqCounter.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) lookupUser(w http.ResponseWriter, r *http.Request) (*messaging.User, bool) {
	u, err := h.users.Lookup(chi.URLParam(r, "userID"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, directory.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		h.respondErr(r.Context(), w, status, err)
		return nil, false
	}
	return u, true
}

func (h *Handler) lookupChannel(w http.ResponseWriter, r *http.Request) (*messaging.Channel, bool) {
	ch, err := h.registry.Lookup(chi.URLParam(r, "variant"))
	if err != nil {
		h.respondErr(r.Context(), w, http.StatusNotFound, err)
		return nil, false
	}
	return ch, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{ Validate() error }) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondErr(r.Context(), w, http.StatusBadRequest, err)
		return false
	}
	if err := v.Validate(); err != nil {
		h.respondErr(r.Context(), w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) respondErr(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger := common.WithContext(ctx, h.logger)
	logger.Error().Err(err).Int("status", status).Msg("api handler failed")
	http.Error(w, err.Error(), status)
}

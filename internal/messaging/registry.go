package messaging

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry owns the one Channel per variant. Every lookup of a variant
// returns the same *Channel, so all producers and consumers in the process
// share its queue and retry table.
type Registry struct {
	limit          int
	exhaustedLimit int
	transports     map[Variant]Transport
	sink           FailureSink
	logger         zerolog.Logger

	mu       sync.Mutex
	channels map[Variant]*Channel
}

type RegistryOption func(*Registry)

// WithRetryLimit overrides RetryLimit. Negative values are treated as 0.
func WithRetryLimit(n int) RegistryOption {
	return func(r *Registry) { r.limit = max(n, 0) }
}

// WithExhaustedMemory bounds how many exhausted ids each channel remembers.
// Zero or less remembers every id for the life of the process.
func WithExhaustedMemory(n int) RegistryOption {
	return func(r *Registry) { r.exhaustedLimit = n }
}

func WithTransport(v Variant, t Transport) RegistryOption {
	return func(r *Registry) { r.transports[v] = t }
}

func WithFailureSink(s FailureSink) RegistryOption {
	return func(r *Registry) { r.sink = s }
}

func WithRegistryLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		limit:          RetryLimit,
		exhaustedLimit: ExhaustedMemory,
		transports:     make(map[Variant]Transport),
		logger:         zerolog.Nop(),
		channels:       make(map[Variant]*Channel),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Channel returns the shared channel for v, creating it on first use.
func (r *Registry) Channel(v Variant) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[v]; ok {
		return ch
	}
	ch := newChannel(v, channelConfig{
		limit:          r.limit,
		exhaustedLimit: r.exhaustedLimit,
		transport:      r.transports[v],
		sink:           r.sink,
		logger:         r.logger,
	})
	r.channels[v] = ch
	return ch
}

// Lookup parses name and returns its channel.
func (r *Registry) Lookup(name string) (*Channel, error) {
	v, err := ParseVariant(name)
	if err != nil {
		return nil, err
	}
	return r.Channel(v), nil
}

// Channels returns every channel created so far, known variants first in
// their declared order.
func (r *Registry) Channels() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b *Channel) int {
		ia, ib := slices.Index(Variants, a.variant), slices.Index(Variants, b.variant)
		if ia == -1 {
			ia = len(Variants)
		}
		if ib == -1 {
			ib = len(Variants)
		}
		if ia != ib {
			return ia - ib
		}
		return cmp.Compare(a.variant, b.variant)
	})
	return out
}

// Redeliver calls RetryPending on every channel each interval until ctx is
// done.
func (r *Registry) Redeliver(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ch := range r.Channels() {
				if ch.PendingRetries() == 0 {
					continue
				}
				n := ch.RetryPending(ctx)
				r.logger.Debug().Str("channel", ch.Variant().Label()).Int("redelivered", n).Msg("redelivery round")
			}
		}
	}
}

package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// RetryLimit is the default number of failed accepts a channel tolerates per
// message before it gives up on it.
const RetryLimit = 3

type Availability int

const (
	Available Availability = iota
	Unavailable
)

func (a Availability) String() string {
	if a == Unavailable {
		return "unavailable"
	}
	return "available"
}

// ExhaustedMemory is the default number of exhausted message ids a channel
// remembers. Past it the oldest ids are forgotten and may be accepted again.
const ExhaustedMemory = 10000

// Channel is the single implementation behind every variant. All state of a
// variant lives here and is guarded by one mutex: the FIFO queue, the set of
// queued ids, ids currently handed to the transport, the retry table and the
// exhausted-id set.
//
// Channels are obtained from a Registry so that every holder of a variant
// shares the same queue.
type Channel struct {
	variant   Variant
	limit     int
	transport Transport
	sink      FailureSink
	logger    zerolog.Logger

	mu        sync.Mutex
	state     Availability
	queue     []Message
	queued    map[string]struct{}
	inflight  map[string]struct{}
	cancelled map[string]struct{}
	retries   map[string]*retryEntry
	exhausted *idSet
	seq       uint64
}

var _ Deliverer = (*Channel)(nil)

type channelConfig struct {
	limit          int
	exhaustedLimit int
	transport      Transport
	sink           FailureSink
	logger         zerolog.Logger
}

func newChannel(v Variant, cfg channelConfig) *Channel {
	return &Channel{
		variant:   v,
		limit:     cfg.limit,
		transport: cfg.transport,
		sink:      cfg.sink,
		logger:    cfg.logger.With().Str("channel", v.Label()).Logger(),
		queued:    make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
		cancelled: make(map[string]struct{}),
		retries:   make(map[string]*retryEntry),
		exhausted: newIDSet(cfg.exhaustedLimit),
	}
}

func (c *Channel) Variant() Variant { return c.variant }

// Accept hands m to the channel. On an available channel (and a transport
// that took the message, if one is configured) m is appended to the queue;
// otherwise the failure is recorded by the retry coordinator.
//
// While m is with the transport its id is in flight: concurrent accepts of
// the same id report OutcomeDuplicate and never reach the transport.
func (c *Channel) Accept(ctx context.Context, m Message) Outcome {
	c.mu.Lock()
	if c.exhausted.has(m.ID) {
		c.mu.Unlock()
		c.logger.Debug().Str("message_id", m.ID).Msg("message already exhausted on channel")
		return c.observe(OutcomeExhausted)
	}
	if _, ok := c.queued[m.ID]; ok {
		c.mu.Unlock()
		return c.observe(OutcomeDuplicate)
	}
	if _, ok := c.inflight[m.ID]; ok {
		c.mu.Unlock()
		c.logger.Debug().Str("message_id", m.ID).Msg("message already in flight on channel")
		return c.observe(OutcomeDuplicate)
	}
	if c.state == Unavailable {
		res := c.recordFailureLocked(m, ErrChannelUnavailable)
		c.mu.Unlock()
		return c.observe(c.report(ctx, m, res))
	}
	if c.transport == nil {
		out := c.enqueueLocked(m)
		c.mu.Unlock()
		return c.observe(out)
	}
	c.inflight[m.ID] = struct{}{}
	c.mu.Unlock()

	err := c.transport.Send(ctx, m)

	c.mu.Lock()
	delete(c.inflight, m.ID)
	_, cancelled := c.cancelled[m.ID]
	delete(c.cancelled, m.ID)
	switch {
	case err == nil:
		out := c.enqueueLocked(m)
		c.mu.Unlock()
		return c.observe(out)
	case cancelled:
		c.mu.Unlock()
		c.logger.Info().Str("message_id", m.ID).Err(err).Msg("retry cancelled during delivery")
		return c.observe(OutcomeCancelled)
	}
	cause := fmt.Errorf("%w: %s: %v", ErrChannelUnavailable, c.transport.Name(), err)
	res := c.recordFailureLocked(m, cause)
	c.mu.Unlock()
	return c.observe(c.report(ctx, m, res))
}

func (c *Channel) enqueueLocked(m Message) Outcome {
	c.queue = append(c.queue, m)
	c.queued[m.ID] = struct{}{}
	delete(c.retries, m.ID)
	c.updateGaugesLocked()
	c.logger.Info().Str("message_id", m.ID).Str("content", m.Content).Msg("channel updated message")
	return OutcomeAccepted
}

// Drain removes and returns, in enqueue order, every queued message addressed
// to recipient or broadcast. The scan and the removal happen under one lock
// so concurrent drains never hand out the same message twice.
func (c *Channel) Drain(recipient *User) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0)
	kept := c.queue[:0]
	for _, m := range c.queue {
		if m.AddressedTo(recipient) {
			out = append(out, m)
			delete(c.queued, m.ID)
			c.logger.Debug().Str("type", string(m.Type)).Str("content", m.Content).Msg("message received")
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(c.queue); i++ {
		c.queue[i] = Message{}
	}
	c.queue = kept

	if len(out) > 0 {
		drainCounter.WithLabelValues(string(c.variant)).Add(float64(len(out)))
		c.updateGaugesLocked()
	}
	return out
}

// SetAvailability forces the channel state. Turning a channel back to
// Available immediately redelivers every message held by the retry table.
func (c *Channel) SetAvailability(ctx context.Context, a Availability) {
	if c.SetState(a) {
		c.RetryPending(ctx)
	}
}

// SetState forces the channel state without redelivering anything. It
// reports whether the channel just recovered, in which case the caller owns
// the RetryPending call.
func (c *Channel) SetState(a Availability) (recovered bool) {
	c.mu.Lock()
	prev := c.state
	c.state = a
	c.mu.Unlock()
	if prev == a {
		return false
	}
	c.logger.Info().Str("from", prev.String()).Str("to", a.String()).Msg("channel availability changed")
	return a == Available
}

func (c *Channel) Availability() Availability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Len returns the number of queued messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Status is a point-in-time view of a channel.
type Status struct {
	Variant   Variant `json:"channel"`
	Available bool    `json:"available"`
	Queued    int     `json:"queued"`
	Retrying  int     `json:"retrying"`
	Exhausted int     `json:"exhausted"`
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Variant:   c.variant,
		Available: c.state == Available,
		Queued:    len(c.queue),
		Retrying:  len(c.retries),
		Exhausted: c.exhausted.len(),
	}
}

func (c *Channel) observe(o Outcome) Outcome {
	acceptCounter.WithLabelValues(string(c.variant), o.String()).Inc()
	return o
}

func (c *Channel) updateGaugesLocked() {
	queueDepth.WithLabelValues(string(c.variant)).Set(float64(len(c.queue)))
	pendingRetries.WithLabelValues(string(c.variant)).Set(float64(len(c.retries)))
}

// idSet is an insertion-ordered set that forgets its oldest ids beyond limit.
// A limit of zero or less keeps every id.
type idSet struct {
	limit int
	ids   map[string]struct{}
	order []string
}

func newIDSet(limit int) *idSet {
	return &idSet{limit: limit, ids: make(map[string]struct{})}
}

func (s *idSet) add(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if s.limit > 0 && len(s.order) > s.limit {
		oldest := s.order[0]
		s.order[0] = ""
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
}

func (s *idSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *idSet) len() int { return len(s.ids) }

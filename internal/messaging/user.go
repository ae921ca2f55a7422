package messaging

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// User is a message recipient together with its subscription set.
type User struct {
	id    string
	Name  string
	Email string
	Phone string

	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[Variant]struct{}
}

func NewUser(id, name, email, phone string) *User {
	return &User{
		id:     id,
		Name:   name,
		Email:  email,
		Phone:  phone,
		logger: zerolog.Nop(),
		subs:   make(map[Variant]struct{}),
	}
}

// WithLogger sets the sink for the user's trace lines and returns u.
func (u *User) WithLogger(logger zerolog.Logger) *User {
	u.logger = logger.With().Str("user_id", u.id).Logger()
	return u
}

func (u *User) ID() string { return u.id }

// Subscribe adds ch's variant to the subscription set. Calling it again is a
// no-op.
func (u *User) Subscribe(ch Deliverer) {
	u.mu.Lock()
	u.subs[ch.Variant()] = struct{}{}
	u.mu.Unlock()
	u.logger.Info().Str("channel", ch.Variant().Label()).Msg("user subscribed")
}

// Unsubscribe removes ch's variant. Messages already queued for the user on
// that variant stay queued and become reachable again on resubscription.
func (u *User) Unsubscribe(ch Deliverer) {
	u.mu.Lock()
	delete(u.subs, ch.Variant())
	u.mu.Unlock()
	u.logger.Info().Strs("subscriptions", variantStrings(u.Subscriptions())).Msg("user unsubscribed")
}

func (u *User) Subscribed(ch Deliverer) bool {
	return u.SubscribedTo(ch.Variant())
}

func (u *User) SubscribedTo(v Variant) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.subs[v]
	return ok
}

// Subscriptions returns the subscribed variants in sorted order.
func (u *User) Subscriptions() []Variant {
	u.mu.RLock()
	out := make([]Variant, 0, len(u.subs))
	for v := range u.subs {
		out = append(out, v)
	}
	u.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Receive drains ch for u when u is subscribed to its variant. An
// unsubscribed user gets an empty result and the queue is left untouched.
func (u *User) Receive(ch Deliverer) []Message {
	u.logger.Debug().Str("channel", ch.Variant().Label()).Msg("user listening")
	if !u.Subscribed(ch) {
		return []Message{}
	}
	msgs := ch.Drain(u)
	if len(msgs) == 0 {
		u.logger.Info().Str("channel", ch.Variant().Label()).Msg("no messages")
		return msgs
	}
	u.logger.Info().
		Str("channel", ch.Variant().Label()).
		Int("count", len(msgs)).
		Msg("messages received")
	return msgs
}

func variantStrings(vs []Variant) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

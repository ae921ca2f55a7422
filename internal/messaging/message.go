package messaging

import (
	"strings"
	"time"
)

type MediaType string

const (
	MediaText  MediaType = "text/plain"
	MediaBlob  MediaType = "blob"
	MediaVideo MediaType = "video/*"
)

// IsVideo reports whether t is any video/* type.
func (t MediaType) IsVideo() bool {
	return strings.HasPrefix(string(t), "video/")
}

// Message is an immutable value. A nil recipient marks a broadcast message,
// drainable by any user from any channel it lands on.
type Message struct {
	ID        string
	Type      MediaType
	Content   string
	CreatedAt time.Time

	to *User
}

// NewMessage builds a message with an explicit id. Routers allocate ids
// themselves; this is exposed for relays and tests that replay known ids.
func NewMessage(id string, typ MediaType, content string, to *User) Message {
	return Message{
		ID:        id,
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		to:        to,
	}
}

func (m Message) Recipient() *User { return m.to }

// RecipientID returns the recipient's id, or "" for broadcasts.
func (m Message) RecipientID() string {
	if m.to == nil {
		return ""
	}
	return m.to.ID()
}

func (m Message) IsBroadcast() bool { return m.to == nil }

// AddressedTo reports whether a drain by u should pick m up.
func (m Message) AddressedTo(u *User) bool {
	if m.to == nil {
		return true
	}
	return u != nil && m.to.ID() == u.ID()
}

// Package payload holds the PayloadStore implementations: an object store
// for binary media, a search index for text, and a media-type router.
package payload

import (
	"context"
	"strings"

	"github.com/example/multichannel/internal/messaging"
)

// Noop discards payloads.
type Noop struct{}

func (Noop) Store(context.Context, messaging.MediaType, string) (string, error) { return "", nil }

// Mux picks a store by media type: text/* goes to Text, blob and video/* to
// Object, anything else to Fallback. Nil targets fall through to Fallback,
// and a nil Fallback stores nothing.
type Mux struct {
	Text     messaging.PayloadStore
	Object   messaging.PayloadStore
	Fallback messaging.PayloadStore
}

func (m *Mux) Store(ctx context.Context, typ messaging.MediaType, content string) (string, error) {
	return m.route(typ).Store(ctx, typ, content)
}

func (m *Mux) route(typ messaging.MediaType) messaging.PayloadStore {
	var target messaging.PayloadStore
	switch {
	case strings.HasPrefix(string(typ), "text/"):
		target = m.Text
	case typ == messaging.MediaBlob || typ.IsVideo():
		target = m.Object
	}
	if target != nil {
		return target
	}
	if m.Fallback != nil {
		return m.Fallback
	}
	return Noop{}
}

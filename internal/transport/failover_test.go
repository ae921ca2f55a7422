package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/multichannel/internal/messaging"
)

func TestSESProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		permanent bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "server error", status: http.StatusBadGateway, wantErr: true},
		{name: "client error", status: http.StatusBadRequest, wantErr: true, permanent: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/send", r.URL.Path)
				assert.Equal(t, "key", r.Header.Get("X-API-Key"))
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "a@b.com", body["to"])
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			p := &SESProvider{Endpoint: srv.URL, APIKey: "key"}
			err := p.Send(context.Background(), Delivery{MessageID: "m1", To: "a@b.com", Content: "hi"})
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var perm *backoff.PermanentError
			assert.Equal(t, tc.permanent, errors.As(err, &perm))
		})
	}
}

func TestFailover_FallsBackToNextProvider(t *testing.T) {
	var sesCalls, sgCalls atomic.Int32
	ses := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sesCalls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ses.Close()
	sg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sgCalls.Add(1)
		assert.Equal(t, "Bearer sg", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sg.Close()

	f := &Failover{
		Variant: messaging.VariantEmail,
		Providers: []Provider{
			&SESProvider{Endpoint: ses.URL},
			&SendGridProvider{Endpoint: sg.URL, APIKey: "sg"},
		},
		Resolve: func(v messaging.Variant, id string) (string, error) {
			assert.Equal(t, messaging.VariantEmail, v)
			return id + "@example.com", nil
		},
		MaxElapsed: 200 * time.Millisecond,
		Logger:     zerolog.Nop(),
	}

	u := messaging.NewUser("ram", "Ram", "", "")
	require.NoError(t, f.Send(context.Background(), messaging.NewMessage("m1", messaging.MediaText, "hi", u)))
	assert.Equal(t, int32(1), sesCalls.Load(), "permanent errors are not retried")
	assert.Equal(t, int32(1), sgCalls.Load())
}

func TestFailover_AllProvidersFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := &Failover{
		Variant:     messaging.VariantEmail,
		Providers:   []Provider{&SESProvider{Endpoint: srv.URL}},
		BroadcastTo: "all@example.com",
		MaxElapsed:  50 * time.Millisecond,
		Logger:      zerolog.Nop(),
	}
	err := f.Send(context.Background(), messaging.NewMessage("m1", messaging.MediaText, "hi", nil))
	assert.ErrorContains(t, err, "ses temporary error")
}

func TestFailover_Misconfigured(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, (&Failover{}).Send(ctx, messaging.NewMessage("m", messaging.MediaText, "", nil)), ErrNoProviders)

	f := &Failover{Providers: []Provider{&SESProvider{}}}
	assert.ErrorContains(t, f.Send(ctx, messaging.NewMessage("m", messaging.MediaText, "", nil)), "broadcast address")

	f.Resolve = func(messaging.Variant, string) (string, error) { return "", errors.New("no such user") }
	u := messaging.NewUser("ghost", "", "", "")
	assert.ErrorContains(t, f.Send(ctx, messaging.NewMessage("m", messaging.MediaText, "", u)), "no such user")
}

type fakePostmark struct {
	resp postmark.EmailResponse
	got  postmark.Email
}

func (f *fakePostmark) SendEmail(_ context.Context, e postmark.Email) (postmark.EmailResponse, error) {
	f.got = e
	return f.resp, nil
}

func TestPostmarkProvider(t *testing.T) {
	_, err := NewPostmarkProvider("", "", "")
	assert.ErrorIs(t, err, ErrPostmarkNotConfigured)

	fake := &fakePostmark{}
	p := &PostmarkProvider{client: fake, from: "noreply@example.com"}
	require.NoError(t, p.Send(context.Background(), Delivery{MessageID: "m1", To: "a@b.com", Content: "hi"}))
	assert.Equal(t, "a@b.com", fake.got.To)
	assert.Equal(t, "m1", fake.got.Metadata["message_id"])

	fake.resp = postmark.EmailResponse{ErrorCode: 300, Message: "Invalid email request"}
	err = p.Send(context.Background(), Delivery{MessageID: "m2", To: "bad"})
	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm))
}

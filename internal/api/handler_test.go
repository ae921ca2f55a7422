package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/multichannel/internal/directory"
	"github.com/example/multichannel/internal/messaging"
)

type testServer struct {
	srv      *httptest.Server
	handler  *Handler
	registry *messaging.Registry
	users    *directory.Memory
}

func newTestServer(t *testing.T, opts ...messaging.RegistryOption) *testServer {
	t.Helper()
	reg := messaging.NewRegistry(opts...)
	router := messaging.NewRouter()
	for _, v := range messaging.Variants {
		router.AddChannel(reg.Channel(v))
	}
	users := directory.NewMemory(zerolog.Nop())
	h := NewHandler(router, reg, users, zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		h.Wait()
	})
	return &testServer{srv: srv, handler: h, registry: reg, users: users}
}

// heldTransport blocks every Send until release is closed.
type heldTransport struct {
	release chan struct{}
}

func (h heldTransport) Name() string { return "held" }

func (h heldTransport) Send(context.Context, messaging.Message) error {
	<-h.release
	return nil
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name    string
		request CreateUserRequest
		wantErr bool
	}{
		{name: "valid", request: CreateUserRequest{Name: "Ram", Email: "ram@gmail.com", Phone: "7889900112"}},
		{name: "name only", request: CreateUserRequest{Name: "Ram"}},
		{name: "missing name", request: CreateUserRequest{Email: "ram@gmail.com"}, wantErr: true},
		{name: "bad email", request: CreateUserRequest{Name: "Ram", Email: "not-an-email"}, wantErr: true},
		{name: "bad phone", request: CreateUserRequest{Name: "Ram", Phone: "12ab"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.request.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSendRequestValidation(t *testing.T) {
	assert.NoError(t, SendRequest{RecipientID: "u", Channel: "sms", Type: messaging.MediaText}.Validate())
	assert.Error(t, SendRequest{RecipientID: "u", Channel: "pigeon", Type: messaging.MediaText}.Validate())
	assert.Error(t, SendRequest{Channel: "sms", Type: messaging.MediaText}.Validate())
	assert.Error(t, AvailabilityRequest{}.Validate())
}

func TestSendAndReceiveFlow(t *testing.T) {
	s := newTestServer(t)

	resp, user := s.do(t, http.MethodPost, "/v1/users", CreateUserRequest{Name: "Ram", Email: "ram@gmail.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := user["id"].(string)

	resp, user = s.do(t, http.MethodPut, "/v1/users/"+id+"/subscriptions/sms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"sms"}, user["subscriptions"])

	resp, out := s.do(t, http.MethodPost, "/v1/messages", SendRequest{RecipientID: id, Channel: "sms", Type: messaging.MediaText, Content: "Hi"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", out["outcome"])

	resp, out = s.do(t, http.MethodPost, "/v1/messages", SendRequest{RecipientID: id, Channel: "email", Type: messaging.MediaText, Content: "Hi"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ineligible", out["outcome"])

	resp, out = s.do(t, http.MethodPost, "/v1/users/"+id+"/channels/sms/receive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi", msgs[0].(map[string]any)["content"])

	_, out = s.do(t, http.MethodPost, "/v1/users/"+id+"/channels/sms/receive", nil)
	assert.Empty(t, out["messages"])
}

func TestBroadcast(t *testing.T) {
	s := newTestServer(t)

	resp, out := s.do(t, http.MethodPost, "/v1/broadcasts", BroadcastRequest{Type: messaging.MediaBlob, Content: "Picture uploaded"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	outcomes := out["outcomes"].(map[string]any)
	assert.Equal(t, "accepted", outcomes["sms"])
	assert.Equal(t, "accepted", outcomes["whatsapp"])
	assert.Equal(t, "accepted", outcomes["email"])

	for _, v := range messaging.Variants {
		assert.Equal(t, 1, s.registry.Channel(v).Len())
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)
	u := s.users.Create("Ram", "", "")

	resp, _ := s.do(t, http.MethodGet, "/v1/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, "/v1/users/"+u.ID()+"/subscriptions/pigeon", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/messages", SendRequest{RecipientID: "nobody", Channel: "sms", Type: messaging.MediaText})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAvailabilityAndRetry(t *testing.T) {
	s := newTestServer(t)
	u := s.users.Create("Ram", "", "")
	u.Subscribe(s.registry.Channel(messaging.VariantWhatsApp))

	resp, status := s.do(t, http.MethodPut, "/v1/channels/whatsapp/availability", map[string]any{"available": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, status["available"])

	_, out := s.do(t, http.MethodPost, "/v1/messages", SendRequest{RecipientID: u.ID(), Channel: "whatsapp", Type: messaging.MediaText, Content: "x"})
	assert.Equal(t, "retrying", out["outcome"])
	msgID := out["message_id"].(string)

	resp, _ = s.do(t, http.MethodDelete, "/v1/channels/whatsapp/retries/"+msgID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(t, http.MethodDelete, "/v1/channels/whatsapp/retries/"+msgID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.do(t, http.MethodPost, "/v1/messages", SendRequest{RecipientID: u.ID(), Channel: "whatsapp", Type: messaging.MediaText, Content: "y"})
	resp, status = s.do(t, http.MethodPut, "/v1/channels/whatsapp/availability", map[string]any{"available": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, status["available"])

	s.handler.Wait()
	wa := s.registry.Channel(messaging.VariantWhatsApp)
	assert.Equal(t, 1, wa.Len())
	assert.Zero(t, wa.PendingRetries())
}

func TestProviderRecoveryDoesNotWaitForRedelivery(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, messaging.WithTransport(messaging.VariantEmail, heldTransport{release: release}))
	email := s.registry.Channel(messaging.VariantEmail)
	ctx := context.Background()

	email.SetAvailability(ctx, messaging.Unavailable)
	require.Equal(t, messaging.OutcomeRetrying, email.Accept(ctx, messaging.NewMessage("m1", messaging.MediaText, "hi", nil)))

	resp, status := s.do(t, http.MethodPost, "/v1/providers/sendgrid/events", map[string]any{"event": "recovered"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, status["available"])
	assert.Zero(t, email.Len(), "redelivery is still with the transport")

	close(release)
	s.handler.Wait()
	assert.Equal(t, 1, email.Len())
	assert.Zero(t, email.PendingRetries())
}

func TestProviderEvent(t *testing.T) {
	s := newTestServer(t)

	resp, status := s.do(t, http.MethodPost, "/v1/providers/twilio/events", map[string]any{"status": "outage"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "sms", status["channel"])
	assert.Equal(t, messaging.Unavailable, s.registry.Channel(messaging.VariantSMS).Availability())

	resp, _ = s.do(t, http.MethodPost, "/v1/providers/twilio/events", map[string]any{"status": "recovered"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, messaging.Available, s.registry.Channel(messaging.VariantSMS).Availability())

	resp, _ = s.do(t, http.MethodPost, "/v1/providers/carrier-pigeon/events", map[string]any{"status": "up"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNormalizeHealthEvent(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  map[string]any
		want     HealthEvent
		wantErr  bool
	}{
		{
			name:     "ses outage",
			provider: "ses",
			payload:  map[string]any{"event": "outage"},
			want:     HealthEvent{Provider: "ses", Variant: messaging.VariantEmail, Status: "outage"},
		},
		{
			name:     "postmark resolved",
			provider: "postmark",
			payload:  map[string]any{"Status": "Resolved"},
			want:     HealthEvent{Provider: "postmark", Variant: messaging.VariantEmail, Status: "Resolved", Available: true},
		},
		{
			name:     "meta up",
			provider: "meta",
			payload:  map[string]any{"status": "up"},
			want:     HealthEvent{Provider: "meta", Variant: messaging.VariantWhatsApp, Status: "up", Available: true},
		},
		{name: "missing field", provider: "sendgrid", payload: map[string]any{}, wantErr: true},
		{name: "unknown status", provider: "twilio", payload: map[string]any{"status": "delivered"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeHealthEvent(tc.provider, tc.payload)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

func newTestAdapter(handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
	return NewAdapter(client), server
}

func testMessage() *message.OutboundMessage {
	m := message.NewOutboundMessage("tenant-1", message.ChannelWhatsApp, "+15550001", "k1")
	m.Content = map[string]any{"body": "hello"}
	return m
}

func TestAdapterSupports(t *testing.T) {
	a := NewAdapter(NewClient(Config{}))

	assert.True(t, a.Supports(message.ChannelEmail))
	assert.True(t, a.Supports(message.ChannelSMS))
	assert.True(t, a.Supports(message.ChannelWhatsApp))
	assert.True(t, a.Supports(message.ChannelChat))
	assert.False(t, a.Supports(message.ChannelInApp))
}

func TestSend_Success(t *testing.T) {
	var gotAuth string
	var gotReq sendRequest
	adapter, server := newTestAdapter(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: "wamid.123"})
	})
	defer server.Close()

	result := adapter.Send(context.Background(), testMessage())

	require.True(t, result.Success())
	assert.Equal(t, "wamid.123", result.ProviderMessageID)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "WHATSAPP", gotReq.Channel)
	assert.Equal(t, "+15550001", gotReq.Recipient)
}

func TestSend_ServerErrorIsRetryable(t *testing.T) {
	adapter, server := newTestAdapter(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer server.Close()

	result := adapter.Send(context.Background(), testMessage())

	assert.False(t, result.Success())
	assert.True(t, result.Retryable)
	assert.Equal(t, "GATEWAY_ERROR", result.ErrorCode)
}

func TestSend_TooManyRequestsIsRetryable(t *testing.T) {
	adapter, server := newTestAdapter(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer server.Close()

	result := adapter.Send(context.Background(), testMessage())

	assert.True(t, result.Retryable)
	assert.Equal(t, "GATEWAY_RATE_LIMITED", result.ErrorCode)
}

func TestSend_ErrorCodeClassification(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{"130", true},
		{"80007", true},
		{"132015", false},
		{"132016", false},
		{"131031", false},
		{"132001", false},
		{"999999", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			adapter, server := newTestAdapter(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				var resp errorResponse
				resp.Error.Code = tt.code
				resp.Error.Message = "gateway rejected the request"
				_ = json.NewEncoder(w).Encode(resp)
			})
			defer server.Close()

			result := adapter.Send(context.Background(), testMessage())

			assert.False(t, result.Success())
			assert.Equal(t, tt.code, result.ErrorCode)
			assert.Equal(t, tt.retryable, result.Retryable)
		})
	}
}

func TestSend_MalformedErrorBodyIsPermanent(t *testing.T) {
	adapter, server := newTestAdapter(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("not json"))
	})
	defer server.Close()

	result := adapter.Send(context.Background(), testMessage())

	assert.False(t, result.Retryable)
	assert.Equal(t, "GATEWAY_REJECTED", result.ErrorCode)
}

func TestSend_ContextDeadlineIsRetryableTimeout(t *testing.T) {
	adapter, server := newTestAdapter(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := adapter.Send(ctx, testMessage())

	assert.False(t, result.Success())
	assert.True(t, result.Retryable)
	assert.Equal(t, message.ErrCodeTimeout, result.ErrorCode)
}

func TestSend_UnreachableGatewayIsRetryable(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second})
	adapter := NewAdapter(client)

	result := adapter.Send(context.Background(), testMessage())

	assert.False(t, result.Success())
	assert.True(t, result.Retryable)
	assert.Equal(t, "GATEWAY_UNREACHABLE", result.ErrorCode)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onurcolak/event-automation-service/environments"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(environments.GatewayConfig{
		URL:     srv.URL + "/message/sendText",
		Token:   "svc-token",
		Timeout: 2 * time.Second,
	})

	return client, &calls
}

func TestSendText_PostsNumberAndText(t *testing.T) {
	var got SendTextRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/message/sendText", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messageId":"wamid-1"}`))
	})

	resp, err := client.SendText(context.Background(), "5511988887777", "Olá")
	require.NoError(t, err)

	assert.Equal(t, "wamid-1", resp.MessageID)
	assert.Equal(t, SendTextRequest{Number: "5511988887777", Text: "Olá"}, got)
}

func TestSendText_MessageIDShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"top level messageId", `{"messageId":"a"}`, "a"},
		{"nested key id", `{"key":{"remoteJid":"x","id":"b"}}`, "b"},
		{"top level id", `{"id":"c"}`, "c"},
		{"no id", `{"status":"PENDING"}`, ""},
		{"empty body", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(tt.body))
			})

			resp, err := client.SendText(context.Background(), "5511988887777", "hi")
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.MessageID)
		})
	}
}

func TestSendText_NonSuccessStatusIsAPIError(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"error":"Bad Request","response":{"message":["number not on whatsapp"]}}`))
	})

	_, err := client.SendText(context.Background(), "5511988887777", "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "number not on whatsapp", apiErr.Detail)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "gateway must not be retried")
}

func TestSendText_ErrorFieldInSuccessBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"instance disconnected"}`))
	})

	_, err := client.SendText(context.Background(), "5511988887777", "hi")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, "instance disconnected", apiErr.Detail)
}

func TestSendText_ServerErrorWithoutDetail(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.SendText(context.Background(), "5511988887777", "hi")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Empty(t, apiErr.Detail)
	assert.Equal(t, "gateway returned status 502", apiErr.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestSendText_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(environments.GatewayConfig{URL: url, Timeout: time.Second})

	_, err := client.SendText(context.Background(), "5511988887777", "hi")
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

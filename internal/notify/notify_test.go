package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coldchain/internal/taskqueue"
)

func TestWebhookDeliver(t *testing.T) {
	var got taskqueue.AlertNotifyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	err := n.Deliver(context.Background(), taskqueue.AlertNotifyPayload{AlertID: 3, DeviceID: "BOX1", Status: "OPEN"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.AlertID)
	assert.Equal(t, "BOX1", got.DeviceID)
}

func TestWebhookDeliverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	err := n.Deliver(context.Background(), taskqueue.AlertNotifyPayload{AlertID: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewPicksLogNotifierWithoutURL(t *testing.T) {
	d := New("", 0, zap.NewNop())
	_, ok := d.(*LogNotifier)
	assert.True(t, ok)
	assert.NoError(t, d.Deliver(context.Background(), taskqueue.AlertNotifyPayload{AlertID: 1}))

	_, ok = New("http://example.invalid/hook", 0, zap.NewNop()).(*WebhookNotifier)
	assert.True(t, ok)
}

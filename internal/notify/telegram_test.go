package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
)

func TestNotifySendsMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(&config.TelegramConfig{BotToken: "token123", ChatID: "42"})
	n.apiBase = srv.URL

	n.Notify(context.Background(), "✅ Renewal succeeded. New expiry: 2025-04-09")

	assert.Equal(t, "/bottoken123/sendMessage", gotPath)
	assert.Equal(t, "42", gotPayload["chat_id"])
	assert.Equal(t, "HTML", gotPayload["parse_mode"])
	assert.Contains(t, gotPayload["text"], "2025-04-09")
}

func TestNotifyUnconfiguredIsNoOp(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewNotifier(&config.TelegramConfig{})
	n.apiBase = srv.URL

	n.Notify(context.Background(), "anything")
	assert.False(t, called)
}

func TestNotifyFailureDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(&config.TelegramConfig{BotToken: "t", ChatID: "c"})
	n.apiBase = srv.URL

	// Best effort only.
	n.Notify(context.Background(), "msg")
}

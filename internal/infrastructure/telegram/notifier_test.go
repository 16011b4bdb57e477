package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/config"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var path, chat, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		path = r.URL.Path
		chat = r.PostForm.Get("chat_id")
		text = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "tok", ChatID: "42", Endpoint: srv.URL})
	require.NoError(t, n.PublishDigest(context.Background(), "*crawl done*"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", chat)
	assert.Equal(t, "*crawl done*", text)
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "tok", ChatID: "42", Endpoint: srv.URL})
	err := n.PublishDigest(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	assert.False(t, NewNotifier(config.TelegramConfig{}).Enabled())
	require.Error(t, NewNotifier(config.TelegramConfig{}).PublishDigest(context.Background(), "x"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("я", maxMessageRunes+10)
	out := truncate(long, maxMessageRunes)
	assert.Equal(t, maxMessageRunes, utf8.RuneCountInString(out))
	assert.Equal(t, "short", truncate("short", maxMessageRunes))
}

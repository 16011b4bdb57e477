package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/config"
)

func newTestClient(t *testing.T, content string, status int) (*ChatGPTClient, *[]byte) {
	t.Helper()
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured, _ = json.Marshal(body)
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)

	return NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m", APIKey: "key"}), &captured
}

func TestExtractMention(t *testing.T) {
	t.Parallel()

	client, captured := newTestClient(t, `{"country":"fra","favorability":-1}`, http.StatusOK)
	m, err := client.ExtractMention(context.Background(), "Paris protests grow", "USA")
	require.NoError(t, err)
	assert.Equal(t, "FRA", m.TargetISO)
	assert.Equal(t, -1, m.Favorability)
	assert.Contains(t, string(*captured), "json_object")
	assert.Contains(t, string(*captured), "Paris protests grow")
}

func TestExtractMentionNormalizesSelfReference(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, "```json\n{\"country\":\"USA\",\"favorability\":\"1\"}\n```", http.StatusOK)
	m, err := client.ExtractMention(context.Background(), "Congress votes", "USA")
	require.NoError(t, err)
	assert.Empty(t, m.TargetISO)
	assert.Zero(t, m.Favorability)
}

func TestExtractMentionErrors(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, "", http.StatusTooManyRequests)
	_, err := client.ExtractMention(context.Background(), "x", "USA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	bad, _ := newTestClient(t, "not json", http.StatusOK)
	_, err = bad.ExtractMention(context.Background(), "x", "USA")
	require.Error(t, err)

	_, err = NewChatGPTClient(config.ChatGPTConfig{}).ExtractMention(context.Background(), "x", "USA")
	require.Error(t, err)
}

package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cohere-ai/cohere-go/v2/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/config"
	"AffineNews/internal/domain"
)

func TestGeminiEmbed(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotBody struct {
		Requests []geminiEmbedRequest `json:"requests"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(config.EmbeddingConfig{
		Endpoint:     srv.URL + "/",
		Model:        "gemini-embedding-001",
		GeminiAPIKey: "k",
		Dimensions:   2,
	})

	vecs, err := client.Embed(context.Background(), []string{"a", "b"}, domain.EmbedQuery)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	assert.Equal(t, "/models/gemini-embedding-001:batchEmbedContents", gotPath)
	assert.Equal(t, "k", gotKey)
	require.Len(t, gotBody.Requests, 2)
	assert.Equal(t, "RETRIEVAL_QUERY", gotBody.Requests[0].TaskType)
	assert.Equal(t, "models/gemini-embedding-001", gotBody.Requests[0].Model)
	assert.Equal(t, 2, gotBody.Requests[1].OutputDimensionality)
	assert.Equal(t, "b", gotBody.Requests[1].Content.Parts[0].Text)
}

func TestGeminiEmbedErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGeminiClient(config.EmbeddingConfig{Endpoint: srv.URL, Model: "m", GeminiAPIKey: "k"})
	_, err := client.Embed(context.Background(), []string{"a"}, domain.EmbedDocument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	empty, err := client.Embed(context.Background(), nil, domain.EmbedDocument)
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = NewGeminiClient(config.EmbeddingConfig{}).Embed(context.Background(), []string{"a"}, domain.EmbedDocument)
	require.Error(t, err)
}

func TestGeminiEmbedCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[1]}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(config.EmbeddingConfig{Endpoint: srv.URL, Model: "m", GeminiAPIKey: "k"})
	_, err := client.Embed(context.Background(), []string{"a", "b"}, domain.EmbedDocument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestNewCohereClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewCohereClient(config.EmbeddingConfig{})
	require.Error(t, err)

	c, err := NewCohereClient(config.EmbeddingConfig{CohereAPIKey: "k", Model: "gemini-embedding-001"})
	require.NoError(t, err)
	assert.Equal(t, "embed-multilingual-v3.0", c.model)
}

func TestCohereEmbedThroughRequestOptions(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","response_type":"embeddings_by_type","embeddings":{"float":[[0.5,0.25]]},"texts":["election"]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewCohereClient(config.EmbeddingConfig{CohereAPIKey: "k"}, option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"election"}, domain.EmbedQuery)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}}, vecs)
	assert.Equal(t, "/v2/embed", gotPath)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "search_query", gotBody["input_type"])
	assert.Equal(t, "embed-multilingual-v3.0", gotBody["model"])
}

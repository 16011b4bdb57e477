package ml

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"

	"AffineNews/internal/config"
	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

// CohereClient embeds texts with the Cohere v2 Embed API.
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

var _ ports.Embedder = (*CohereClient)(nil)

// NewCohereClient builds a client from configuration.
func NewCohereClient(cfg config.EmbeddingConfig, opts ...option.RequestOption) (*CohereClient, error) {
	if cfg.CohereAPIKey == "" {
		return nil, errors.New("cohere client misconfigured: api key is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := cfg.Model
	if model == "" || model == "gemini-embedding-001" {
		model = "embed-multilingual-v3.0"
	}

	base := []option.RequestOption{
		option.WithToken(cfg.CohereAPIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	return &CohereClient{
		client: cohereclient.NewClient(append(base, opts...)...),
		model:  model,
	}, nil
}

// Embed returns one float vector per text.
func (c *CohereClient) Embed(ctx context.Context, texts []string, task domain.EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputType := cohere.EmbedInputTypeSearchDocument
	if task == domain.EmbedQuery {
		inputType = cohere.EmbedInputTypeSearchQuery
	}

	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      inputType,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings.Float))
	}

	out := make([][]float32, len(resp.Embeddings.Float))
	for i, vec := range resp.Embeddings.Float {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/api"
	"AffineNews/internal/config"
	"AffineNews/internal/infrastructure/storage"
	"AffineNews/internal/logging"
	"AffineNews/internal/usecase"
)

func testConfig(sourcesFile string) config.Config {
	return config.Config{
		Crawler:     config.CrawlerConfig{MaxArticles: 10, Workers: 2, SourcesFile: sourcesFile},
		Translation: config.TranslationConfig{BatchSize: 10, Limit: 100},
		Embedding:   config.EmbeddingConfig{Provider: "gemini", Dimensions: 768, BatchSize: 10, MaxAge: 48 * time.Hour},
		Annotation:  config.AnnotationConfig{Limit: 100, MaxAge: 48 * time.Hour},
		Query:       config.QueryConfig{SimilarityThreshold: 0.6, SemanticLimit: 50, MinArticlesPerCountry: 1},
		Server:      config.ServerConfig{PapersMaxAge: time.Hour, QueryMaxAge: time.Minute},
	}
}

func TestAssembleWithoutCredentialsDisablesCollaborators(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	a := Assemble(context.Background(), testConfig(""), logging.Discard(), repo, repo)

	assert.Nil(t, a.translator)
	assert.Nil(t, a.embedder)
	assert.Nil(t, a.extractor)
	assert.Nil(t, a.notifier)
	require.NotNil(t, a.Translation())
	require.NotNil(t, a.Embedding())
	require.NotNil(t, a.Annotation())
	require.NotNil(t, a.Query())
	assert.NoError(t, a.Close())

	_, err := a.Query().SemanticSearch(context.Background(), "election", "2024-03-01", "2024-03-02")
	assert.ErrorIs(t, err, usecase.ErrSemanticUnavailable)
}

func TestNewEmbedderSelectsProvider(t *testing.T) {
	t.Parallel()

	emb, err := newEmbedder(config.EmbeddingConfig{Provider: "gemini", GeminiAPIKey: "k", Model: "m", Endpoint: "http://x"})
	require.NoError(t, err)
	assert.NotNil(t, emb)

	_, err = newEmbedder(config.EmbeddingConfig{Provider: "cohere"})
	assert.Error(t, err)

	emb, err = newEmbedder(config.EmbeddingConfig{Provider: "cohere", CohereAPIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, emb)
}

func TestSyncSourcesReadsConfiguredFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "papers.yaml")
	body := `
- url: https://www.lemonde.fr
  country: France
  iso: FRA
  lang: fr
  category_urls:
    - https://www.lemonde.fr/international/
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	repo := storage.NewMemoryRepository()
	a := Assemble(context.Background(), testConfig(path), logging.Discard(), repo, repo)

	report, err := a.SyncSources(context.Background(), "", usecase.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	papers, err := repo.ListPapers(context.Background())
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "FRA", papers[0].ISO)

	_, err = a.SyncSources(context.Background(), filepath.Join(dir, "missing.json"), usecase.SyncOptions{})
	assert.Error(t, err)
}

func TestHandlerServesHealth(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	a := Assemble(context.Background(), testConfig(""), logging.Discard(), repo, repo)
	e := api.NewServer(a.Handler(), logging.Discard())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

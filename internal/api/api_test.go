package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/domain"
	"AffineNews/internal/usecase"
)

type fakeQuerier struct {
	hits     map[string][]domain.ArticleHit
	papers   map[string][]string
	series   map[string][]domain.CountryDay
	rows     []domain.CountryComparison
	err      error
	lastArgs []string
}

func (f *fakeQuerier) SearchArticles(_ context.Context, keywords, start, end, country string) (map[string][]domain.ArticleHit, error) {
	f.lastArgs = []string{keywords, start, end, country}
	return f.hits, f.err
}

func (f *fakeQuerier) SemanticSearch(_ context.Context, query, start, end string) (map[string][]domain.ArticleHit, error) {
	f.lastArgs = []string{query, start, end}
	return f.hits, f.err
}

func (f *fakeQuerier) RollingCountryCounts(_ context.Context, keyword, start, end string) (map[string][]domain.CountryDay, error) {
	f.lastArgs = []string{keyword, start, end}
	return f.series, f.err
}

func (f *fakeQuerier) PapersInRange(_ context.Context, start, end string) (map[string][]string, error) {
	f.lastArgs = []string{start, end}
	return f.papers, f.err
}

func (f *fakeQuerier) CountryComparisons(_ context.Context, source string) ([]domain.CountryComparison, error) {
	f.lastArgs = []string{source}
	return f.rows, f.err
}

func newTestServer(q Querier) *echo.Echo {
	return NewServer(NewHandler(q, 4*time.Hour, 15*time.Minute, nil), nil)
}

func TestSearchHandler(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{hits: map[string][]domain.ArticleHit{
		"USA": {{URL: "https://nyt.example.com/a", Title: "Election day", PaperURL: "https://nyt.example.com", Lang: "en", ISO: "USA", PublishAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}},
	}}
	h := NewHandler(q, time.Hour, 15*time.Minute, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/search?query=election&date_start=2024-02-28&date_end=2024-03-02&country=France", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"election", "2024-02-28", "2024-03-02", "France"}, q.lastArgs)
	assert.Equal(t, "public, max-age=900", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["USA"], 1)
	hit := body["USA"][0]
	assert.Equal(t, "https://nyt.example.com/a", hit["article_url"])
	assert.Equal(t, "Election day", hit["title"])
	assert.Equal(t, "https://nyt.example.com", hit["paper_url"])
	assert.Equal(t, "2024-03-01T00:00:00Z", hit["publish_at"])
	assert.Equal(t, "en", hit["lang"])
	_, hasISO := hit["iso"]
	assert.False(t, hasISO)
	_, hasURL := hit["url"]
	assert.False(t, hasURL)
}

func TestPapersETagRoundTrip(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{papers: map[string][]string{"FRA": {"https://lemonde.example.fr"}}}
	e := newTestServer(q)

	req := httptest.NewRequest(http.MethodGet, "/api/papers?date_start=2024-03-01&date_end=2024-03-02", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=14400", rec.Header().Get("Cache-Control"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.JSONEq(t, `{"FRA":["https://lemonde.example.fr"]}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/papers?date_start=2024-03-01&date_end=2024-03-02", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	q.papers["USA"] = []string{"https://nyt.example.com"}
	req = httptest.NewRequest(http.MethodGet, "/api/papers?date_start=2024-03-01&date_end=2024-03-02", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: date_start: missing value", domain.ErrInvalidQuery), http.StatusBadRequest},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
		{usecase.ErrSemanticUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		e := newTestServer(&fakeQuerier{err: tc.err})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/semantic?query=x", nil))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"])
		if tc.status == http.StatusInternalServerError {
			assert.Equal(t, "internal error", body["error"], "backend details stay in the logs")
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeQuerier{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Method Not Allowed", body["error"])
}

func TestStatsComparisonsAndHealth(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{
		series: map[string][]domain.CountryDay{"USA": {{Date: "2024-03-01", ISO: "USA", Total: 2, Rolling: 2}}},
		rows:   []domain.CountryComparison{{SourceCountryISO: "USA", TargetCountryISO: "FRA", Mentions: 3}},
	}
	e := newTestServer(q)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?query=vote&date_start=2024-03-01&date_end=2024-03-07", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"USA":[{"date":"2024-03-01","iso":"USA","total":2,"rolling":2}]}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/comparisons?source=usa", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"usa"}, q.lastArgs)
	assert.Contains(t, rec.Body.String(), `"target_country":"FRA"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "affinenews_api_requests_total")
}

func TestETagMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, etagMatches(`"a", "b"`, `"b"`))
	assert.True(t, etagMatches(`W/"b"`, `"b"`))
	assert.True(t, etagMatches(`*`, `"b"`))
	assert.False(t, etagMatches(``, `"b"`))
}

package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/domain"
	"AffineNews/internal/infrastructure/storage"
)

func newQueryFixture(t *testing.T) (*storage.MemoryRepository, *QueryEngine) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	usa := seedPaper(repo, domain.SourceEntry{URL: "https://nyt.example.com", Country: "United States", ISO: "USA", Lang: "en"})
	fra := seedPaper(repo, domain.SourceEntry{URL: "https://lemonde.example.fr", Country: "France", ISO: "FRA", Lang: "fr"})

	add := func(p domain.Paper, slug, title string, at time.Time, vec []float32) {
		seedArticle(repo, domain.Article{
			URL: p.URL + "/" + slug, Title: title, TitleTranslated: title, Lang: p.Lang,
			PaperID: p.ID, PublishAt: at, TitleEmbedding: vec,
		})
	}
	add(usa, "early", "Election campaign opens", time.Date(2024, 2, 27, 23, 0, 0, 0, time.UTC), []float32{1, 0})
	add(usa, "late", "Election night results", time.Date(2024, 3, 2, 23, 30, 0, 0, time.UTC), []float32{1, 0.1})
	add(usa, "trade", "Trade talks resume", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), []float32{0, 1})
	add(fra, "vote", "Vote count in Paris", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), []float32{0.9, 0.1})
	seedArticle(repo, domain.Article{URL: "https://lemonde.example.fr/raw", Title: "Élection", Lang: "fr",
		PaperID: fra.ID, PublishAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)})

	engine := NewQueryEngine(QueryDeps{
		Repository:            repo,
		Embedder:              &fakeEmbedder{byText: map[string][]float32{"elections": {1, 0}}},
		SimilarityThreshold:   0.63,
		SemanticLimit:         200,
		MinArticlesPerCountry: 2,
		Window:                domain.Window{Before: 3, After: 3},
	})
	return repo, engine
}

func TestSearchArticlesDateBoundaries(t *testing.T) {
	t.Parallel()

	_, engine := newQueryFixture(t)
	got, err := engine.SearchArticles(context.Background(), "election", "2024-02-28", "2024-03-02", "")
	require.NoError(t, err)

	require.Len(t, got["USA"], 1)
	assert.Equal(t, "https://nyt.example.com/late", got["USA"][0].URL, "late on the end day is included")
	_, hasFRA := got["FRA"]
	assert.False(t, hasFRA, "untranslated titles and zero-match countries are absent")
}

func TestSearchArticlesKeywordsAreOred(t *testing.T) {
	t.Parallel()

	_, engine := newQueryFixture(t)
	got, err := engine.SearchArticles(context.Background(), " trade , ,VOTE", "2024-02-01", "2024-03-31", "")
	require.NoError(t, err)
	assert.Len(t, got["USA"], 1)
	assert.Len(t, got["FRA"], 1)

	filtered, err := engine.SearchArticles(context.Background(), "trade,vote", "2024-02-01", "2024-03-31", "France")
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
	assert.Len(t, filtered["FRA"], 1)

	all, err := engine.SearchArticles(context.Background(), "e", "2024-02-01", "2024-03-31", "")
	require.NoError(t, err)
	require.Len(t, all["USA"], 3)
	assert.Equal(t, "https://nyt.example.com/late", all["USA"][0].URL, "newest first")
}

func TestSearchArticlesRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, engine := newQueryFixture(t)
	for name, args := range map[string][3]string{
		"no keywords":   {" , ", "2024-03-01", "2024-03-02"},
		"bad start":     {"vote", "03/01/2024", "2024-03-02"},
		"missing end":   {"vote", "2024-03-01", ""},
		"reverse range": {"vote", "2024-03-05", "2024-03-02"},
	} {
		_, err := engine.SearchArticles(context.Background(), args[0], args[1], args[2], "")
		assert.ErrorIs(t, err, domain.ErrInvalidQuery, name)
	}
}

func TestSemanticSearchDropsSparseCountries(t *testing.T) {
	t.Parallel()

	_, engine := newQueryFixture(t)
	got, err := engine.SemanticSearch(context.Background(), "elections", "2024-02-01", "2024-03-31")
	require.NoError(t, err)

	require.Len(t, got["USA"], 2)
	assert.Equal(t, "https://nyt.example.com/early", got["USA"][0].URL)
	assert.Greater(t, got["USA"][0].Similarity, 0.99)
	_, hasFRA := got["FRA"]
	assert.False(t, hasFRA, "one FRA hit is below the per-country minimum")

	_, err = engine.SemanticSearch(context.Background(), "  ", "2024-02-01", "2024-03-31")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = NewQueryEngine(QueryDeps{}).SemanticSearch(context.Background(), "x", "2024-02-01", "2024-03-31")
	assert.ErrorIs(t, err, ErrSemanticUnavailable)
}

func TestRollingCountryCounts(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	usa := seedPaper(repo, domain.SourceEntry{URL: "https://nyt.example.com", ISO: "USA", Lang: "en"})
	counts := []int{1, 2, 3, 4, 10, 20, 6}
	for day, total := range counts {
		for i := 0; i < total; i++ {
			seedArticle(repo, domain.Article{
				URL: fmt.Sprintf("https://nyt.example.com/%d-%d", day, i), Title: "x",
				TitleTranslated: "Election update", Lang: "en", PaperID: usa.ID,
				PublishAt: time.Date(2024, 3, 1+day, 10, 0, 0, 0, time.UTC),
			})
		}
	}
	engine := NewQueryEngine(QueryDeps{Repository: repo, Window: domain.Window{Before: 3, After: 3}})

	got, err := engine.RollingCountryCounts(context.Background(), "election", "2024-03-01", "2024-03-07")
	require.NoError(t, err)
	series := got["USA"]
	require.Len(t, series, 7)
	assert.Equal(t, "2024-03-01", series[0].Date)
	assert.Equal(t, 1, series[0].Total)
	assert.InDelta(t, 2.5, series[0].Rolling, 1e-9, "day 0 averages rows 0..3")
	assert.InDelta(t, 46.0/7.0, series[3].Rolling, 1e-9)
	assert.Equal(t, "2024-03-07", series[6].Date)
}

func TestPapersInRangeAndComparisons(t *testing.T) {
	t.Parallel()

	_, engine := newQueryFixture(t)
	papers, err := engine.PapersInRange(context.Background(), "2024-03-01", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://nyt.example.com"}, papers["USA"])
	assert.Equal(t, []string{"https://lemonde.example.fr"}, papers["FRA"])

	rows, err := engine.CountryComparisons(context.Background(), "usa")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = engine.CountryComparisons(context.Background(), "US")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

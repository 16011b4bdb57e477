package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

// QueryDeps wires the read-side engine.
type QueryDeps struct {
	Repository            ports.QueryRepository
	Embedder              ports.Embedder
	SimilarityThreshold   float64
	SemanticLimit         int
	MinArticlesPerCountry int
	Window                domain.Window
	EmbedTimeout          time.Duration
}

// QueryEngine answers keyword, semantic and statistics queries.
type QueryEngine struct {
	repo          ports.QueryRepository
	embedder      ports.Embedder
	threshold     float64
	limit         int
	minPerCountry int
	window        domain.Window
	embedTimeout  time.Duration
}

// ErrSemanticUnavailable is returned when no embedder is configured.
var ErrSemanticUnavailable = errors.New("semantic search is not configured")

func NewQueryEngine(deps QueryDeps) *QueryEngine {
	return &QueryEngine{
		repo:          deps.Repository,
		embedder:      deps.Embedder,
		threshold:     deps.SimilarityThreshold,
		limit:         deps.SemanticLimit,
		minPerCountry: deps.MinArticlesPerCountry,
		window:        deps.Window,
		embedTimeout:  deps.EmbedTimeout,
	}
}

// SearchArticles matches translated titles against comma-separated keywords
// (any keyword matches) and buckets hits by paper ISO, newest first.
func (q *QueryEngine) SearchArticles(ctx context.Context, rawKeywords, dateStart, dateEnd, country string) (map[string][]domain.ArticleHit, error) {
	keywords := domain.ParseKeywords(rawKeywords)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: query has no keywords", domain.ErrInvalidQuery)
	}
	rng, err := parseRange(dateStart, dateEnd)
	if err != nil {
		return nil, err
	}

	hits, err := q.repo.SearchTitles(ctx, keywords, rng, strings.TrimSpace(country))
	if err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}
	return domain.GroupHits(hits), nil
}

// SemanticSearch ranks titles by cosine similarity to the embedded query text.
// Countries with fewer than the configured minimum of hits are dropped.
func (q *QueryEngine) SemanticSearch(ctx context.Context, query, dateStart, dateEnd string) (map[string][]domain.ArticleHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	rng, err := parseRange(dateStart, dateEnd)
	if err != nil {
		return nil, err
	}
	if q.embedder == nil {
		return nil, ErrSemanticUnavailable
	}

	callCtx, cancel := withTimeout(ctx, q.embedTimeout)
	vectors, err := q.embedder.Embed(callCtx, []string{query}, domain.EmbedQuery)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	hits, err := q.repo.NearestTitles(ctx, vectors[0], rng, q.threshold, q.limit)
	if err != nil {
		return nil, fmt.Errorf("nearest titles: %w", err)
	}

	grouped := domain.GroupHits(hits)
	for iso, bucket := range grouped {
		if len(bucket) < q.minPerCountry {
			delete(grouped, iso)
		}
	}
	return grouped, nil
}

// RollingCountryCounts returns per-country daily keyword counts with a
// centered rolling average, in ascending date order.
func (q *QueryEngine) RollingCountryCounts(ctx context.Context, keyword, dateStart, dateEnd string) (map[string][]domain.CountryDay, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	rng, err := parseRange(dateStart, dateEnd)
	if err != nil {
		return nil, err
	}

	rows, err := q.repo.DailyCounts(ctx, keyword, rng, q.window)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}

	out := make(map[string][]domain.CountryDay)
	for _, row := range rows {
		out[row.ISO] = append(out[row.ISO], row)
	}
	return out, nil
}

// PapersInRange lists, per ISO, the papers with at least one article in range.
func (q *QueryEngine) PapersInRange(ctx context.Context, dateStart, dateEnd string) (map[string][]string, error) {
	rng, err := parseRange(dateStart, dateEnd)
	if err != nil {
		return nil, err
	}
	papers, err := q.repo.PapersInRange(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("papers in range: %w", err)
	}
	return papers, nil
}

// CountryComparisons returns the aggregated favorability rows, optionally for one source country.
func (q *QueryEngine) CountryComparisons(ctx context.Context, sourceISO string) ([]domain.CountryComparison, error) {
	sourceISO = strings.ToUpper(strings.TrimSpace(sourceISO))
	if sourceISO != "" && len(sourceISO) != 3 {
		return nil, fmt.Errorf("%w: source must be an ISO alpha-3 code", domain.ErrInvalidQuery)
	}
	rows, err := q.repo.CountryComparisons(ctx, sourceISO)
	if err != nil {
		return nil, fmt.Errorf("country comparisons: %w", err)
	}
	return rows, nil
}

func parseRange(dateStart, dateEnd string) (domain.DateRange, error) {
	rng, err := domain.ParseDateRange(dateStart, dateEnd)
	if err != nil {
		return domain.DateRange{}, err
	}
	if rng.StartDay() > rng.EndDay() {
		return domain.DateRange{}, fmt.Errorf("%w: date_start is after date_end", domain.ErrInvalidQuery)
	}
	return rng, nil
}

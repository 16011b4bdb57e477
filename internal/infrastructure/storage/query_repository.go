package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"AffineNews/internal/domain"
)

// SearchTitles returns translated titles matching any keyword, newest first.
func (r *PostgresRepository) SearchTitles(ctx context.Context, keywords []string, rng domain.DateRange, country string) ([]domain.ArticleHit, error) {
	return r.hits(ctx, searchQuery(keywords, rng, country), false)
}

// NearestTitles ranks embedded titles by cosine similarity to vector.
func (r *PostgresRepository) NearestTitles(ctx context.Context, vector []float32, rng domain.DateRange, threshold float64, limit int) ([]domain.ArticleHit, error) {
	return r.hits(ctx, nearestQuery(vector, rng, threshold, limit), true)
}

func (r *PostgresRepository) hits(ctx context.Context, q sq.SelectBuilder, withSimilarity bool) ([]domain.ArticleHit, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	var out []domain.ArticleHit
	for rows.Next() {
		var h domain.ArticleHit
		dest := []any{&h.URL, &h.Title, &h.PaperURL, &h.PublishAt, &h.Lang, &h.ISO}
		if withSimilarity {
			dest = append(dest, &h.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.PublishAt = h.PublishAt.UTC()
		out = append(out, h)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

// DailyCounts returns per-country daily match counts with the rolling average.
func (r *PostgresRepository) DailyCounts(ctx context.Context, keyword string, rng domain.DateRange, window domain.Window) ([]domain.CountryDay, error) {
	query, args, err := dailyCountsQuery(keyword, rng, window).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stats query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	var out []domain.CountryDay
	for rows.Next() {
		var d domain.CountryDay
		if err := rows.Scan(&d.Date, &d.ISO, &d.Total, &d.Rolling); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, d)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

// PapersInRange lists papers with at least one article in range, grouped by ISO.
func (r *PostgresRepository) PapersInRange(ctx context.Context, rng domain.DateRange) (map[string][]string, error) {
	query, args, err := papersInRangeQuery(rng).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build papers query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query papers in range: %w", err)
	}

	out := map[string][]string{}
	for rows.Next() {
		var iso, u string
		if err := rows.Scan(&iso, &u); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan paper url: %w", err)
		}
		out[iso] = append(out[iso], u)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

// CountryComparisons reads the aggregated comparison view.
func (r *PostgresRepository) CountryComparisons(ctx context.Context, sourceISO string) ([]domain.CountryComparison, error) {
	query, args, err := comparisonsQuery(sourceISO).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build comparisons query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query comparisons: %w", err)
	}

	var out []domain.CountryComparison
	for rows.Next() {
		var c domain.CountryComparison
		if err := rows.Scan(&c.SourceCountryISO, &c.TargetCountryISO, &c.Mentions, &c.AvgFavorability, &c.Positive, &c.Negative); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		out = append(out, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestTopics returns the newest trending topics batch.
func (r *PostgresRepository) LatestTopics(ctx context.Context) (domain.TopicBatch, error) {
	var (
		day       time.Time
		raw       []byte
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT date, topics, created_at FROM daily_topics ORDER BY created_at DESC LIMIT 1`).
		Scan(&day, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TopicBatch{}, fmt.Errorf("daily topics: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.TopicBatch{}, fmt.Errorf("query daily topics: %w", err)
	}

	var topics []string
	if err := json.Unmarshal(raw, &topics); err != nil {
		return domain.TopicBatch{}, fmt.Errorf("decode topics: %w", err)
	}
	return domain.TopicBatch{Date: domain.DayOf(day), Topics: topics, CreatedAt: createdAt.UTC()}, nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"AffineNews/internal/domain"
)

// ExistingURLs returns the subset of urls already stored.
func (r *PostgresRepository) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if r.db == nil || len(urls) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT url FROM article WHERE url = ANY($1)`, pq.StringArray(urls))
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[u] = true
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertArticleIfAbsent inserts the article unless its URL already exists.
func (r *PostgresRepository) InsertArticleIfAbsent(ctx context.Context, a domain.Article) (bool, error) {
	var translated any
	if a.Translated() {
		translated = a.TitleTranslated
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO article (url, img_url, title, title_translated, lang, publish_at, paper_id, crawl_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (url) DO NOTHING`,
		a.URL, a.ImageURL, a.Title, translated, a.Lang, a.PublishAt.UTC(), a.PaperID, a.CrawlID)
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// PendingTranslation lists articles without a translated title, oldest first.
func (r *PostgresRepository) PendingTranslation(ctx context.Context, limit int) ([]domain.PendingArticle, error) {
	return r.pending(ctx, pendingTranslationQuery(limit))
}

// SaveTranslation stores a translation unless one was written meanwhile.
func (r *PostgresRepository) SaveTranslation(ctx context.Context, url, translated string) (bool, error) {
	return r.execOne(ctx,
		`UPDATE article SET title_translated = $2
		 WHERE url = $1 AND (title_translated IS NULL OR title_translated = '')`,
		url, translated)
}

// PendingEmbedding lists translated articles without a vector.
func (r *PostgresRepository) PendingEmbedding(ctx context.Context, limit int, since time.Time) ([]domain.PendingArticle, error) {
	return r.pending(ctx, pendingEmbeddingQuery(limit, since))
}

// SaveEmbedding stores a title vector unless one was written meanwhile.
func (r *PostgresRepository) SaveEmbedding(ctx context.Context, url string, vector []float32) (bool, error) {
	return r.execOne(ctx,
		`UPDATE article SET title_embedding = $2 WHERE url = $1 AND title_embedding IS NULL`,
		url, pgvector.NewVector(vector))
}

func (r *PostgresRepository) pending(ctx context.Context, q sq.SelectBuilder) ([]domain.PendingArticle, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}

	var out []domain.PendingArticle
	for rows.Next() {
		var p domain.PendingArticle
		if err := rows.Scan(&p.URL, &p.Title, &p.TitleTranslated, &p.Lang, &p.PaperISO, &p.PublishAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.PublishAt = p.PublishAt.UTC()
		out = append(out, p)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// PendingAnnotation lists recent translated articles without country references.
func (r *PostgresRepository) PendingAnnotation(ctx context.Context, limit int, since time.Time) ([]domain.PendingArticle, error) {
	return r.pending(ctx, pendingAnnotationQuery(limit, since))
}

// SaveAnnotation stores an optional reference and marks the article annotated.
func (r *PostgresRepository) SaveAnnotation(ctx context.Context, articleURL string, ref *domain.CountryReference, at time.Time) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if ref != nil {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO article_country_reference (article_url, source_country_iso, target_country_iso, favorability)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (article_url, target_country_iso) DO UPDATE
				 SET favorability = EXCLUDED.favorability,
				     source_country_iso = EXCLUDED.source_country_iso`,
				articleURL, ref.SourceCountryISO, ref.TargetCountryISO, ref.Favorability)
			if err != nil {
				return fmt.Errorf("upsert country reference: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE article SET annotated_at = $2 WHERE url = $1`, articleURL, at.UTC()); err != nil {
			return fmt.Errorf("mark annotated: %w", err)
		}
		return nil
	})
}

// RefreshComparisons rebuilds the country comparison view without blocking readers.
func (r *PostgresRepository) RefreshComparisons(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY country_comparisons`); err != nil {
		return fmt.Errorf("refresh country_comparisons: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"AffineNews/internal/config"
	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

// PostgresRepository persists papers, crawls and articles into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var (
	_ ports.PaperRepository      = (*PostgresRepository)(nil)
	_ ports.CrawlRepository      = (*PostgresRepository)(nil)
	_ ports.ArticleRepository    = (*PostgresRepository)(nil)
	_ ports.AnnotationRepository = (*PostgresRepository)(nil)
	_ ports.QueryRepository      = (*PostgresRepository)(nil)
	_ ports.TopicRepository      = (*PostgresRepository)(nil)
)

// Open creates a pooled connection handle and verifies it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListPapers returns every paper with its ordered category URLs.
func (r *PostgresRepository) ListPapers(ctx context.Context) ([]domain.Paper, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, country, iso, lang, whitelist, created_at FROM paper ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}

	var papers []domain.Paper
	index := map[string]int{}
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[p.ID] = len(papers)
		papers = append(papers, p)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	categories, err := r.categories(ctx, "")
	if err != nil {
		return nil, err
	}
	for paperID, urls := range categories {
		if i, ok := index[paperID]; ok {
			papers[i].CategoryURLs = urls
		}
	}
	return papers, nil
}

// GetPaper loads a single paper by id.
func (r *PostgresRepository) GetPaper(ctx context.Context, id string) (domain.Paper, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, country, iso, lang, whitelist, created_at FROM paper WHERE id = $1`, id)
	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Paper{}, err
	}

	categories, err := r.categories(ctx, id)
	if err != nil {
		return domain.Paper{}, err
	}
	p.CategoryURLs = categories[id]
	return p, nil
}

func (r *PostgresRepository) categories(ctx context.Context, paperID string) (map[string][]string, error) {
	query := `SELECT paper_id, url FROM category_set ORDER BY paper_id, position, url`
	args := []any{}
	if paperID != "" {
		query = `SELECT paper_id, url FROM category_set WHERE paper_id = $1 ORDER BY position, url`
		args = append(args, paperID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}

	out := map[string][]string{}
	for rows.Next() {
		var id, u string
		if err := rows.Scan(&id, &u); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out[id] = append(out[id], u)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (domain.Paper, error) {
	var (
		p         domain.Paper
		whitelist pq.StringArray
	)
	if err := row.Scan(&p.ID, &p.URL, &p.Country, &p.ISO, &p.Lang, &whitelist, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Paper{}, err
		}
		return domain.Paper{}, fmt.Errorf("scan paper: %w", err)
	}
	p.Whitelist = []string(whitelist)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// ApplyPaperChange writes one reconciler decision inside a transaction.
func (r *PostgresRepository) ApplyPaperChange(ctx context.Context, change domain.PaperChange) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		p := change.Paper
		switch change.Kind {
		case domain.ChangeCreate:
			_, err := tx.ExecContext(ctx,
				`INSERT INTO paper (id, url, country, iso, lang, whitelist, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				p.ID, p.URL, p.Country, p.ISO, p.Lang, pq.StringArray(nonNil(p.Whitelist)), time.Now().UTC())
			if err != nil {
				return fmt.Errorf("insert paper %s: %w", p.URL, err)
			}
		case domain.ChangeUpdate:
			if len(change.FieldsChanged) > 0 {
				_, err := tx.ExecContext(ctx,
					`UPDATE paper SET country = $2, iso = $3, lang = $4, whitelist = $5 WHERE id = $1`,
					p.ID, p.Country, p.ISO, p.Lang, pq.StringArray(nonNil(p.Whitelist)))
				if err != nil {
					return fmt.Errorf("update paper %s: %w", p.URL, err)
				}
			}
		default:
			return fmt.Errorf("unknown change kind %q", change.Kind)
		}

		if len(change.CategoriesRemoved) > 0 {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM category_set WHERE paper_id = $1 AND url = ANY($2)`,
				p.ID, pq.StringArray(change.CategoriesRemoved))
			if err != nil {
				return fmt.Errorf("prune categories of %s: %w", p.URL, err)
			}
		}

		if len(change.CategoriesAdded) > 0 {
			var next int
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(position) + 1, 0) FROM category_set WHERE paper_id = $1`, p.ID).Scan(&next); err != nil {
				return fmt.Errorf("category position of %s: %w", p.URL, err)
			}
			for i, u := range change.CategoriesAdded {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO category_set (paper_id, url, position) VALUES ($1, $2, $3)
					 ON CONFLICT (paper_id, url) DO NOTHING`,
					p.ID, u, next+i)
				if err != nil {
					return fmt.Errorf("insert category %s: %w", u, err)
				}
			}
		}
		return nil
	})
}

// CreateCrawl records a new crawl row.
func (r *PostgresRepository) CreateCrawl(ctx context.Context, crawl domain.Crawl) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO crawl (id, paper_id, started_at, status, max_articles) VALUES ($1, $2, $3, $4, $5)`,
		crawl.ID, crawl.PaperID, crawl.StartedAt.UTC(), string(crawl.Status), crawl.MaxArticles)
	if err != nil {
		return fmt.Errorf("insert crawl: %w", err)
	}
	return nil
}

// TransitionCrawl moves a crawl to next only from a legal previous status.
func (r *PostgresRepository) TransitionCrawl(ctx context.Context, id string, next domain.CrawlStatus) error {
	from := domain.PreviousStatuses(next)
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE crawl SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		id, string(next), pq.StringArray(allowed))
	if err != nil {
		return fmt.Errorf("update crawl %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("crawl %s to %s: %w", id, next, domain.ErrIllegalTransition)
	}
	return nil
}

// PurgeCrawlsOn deletes crawls started on day together with their articles.
func (r *PostgresRepository) PurgeCrawlsOn(ctx context.Context, day time.Time) (int64, int64, error) {
	var articles, crawls int64
	dayStr := domain.DayOf(day)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM article WHERE crawl_id IN (SELECT id FROM crawl WHERE DATE(started_at) = $1)`, dayStr)
		if err != nil {
			return fmt.Errorf("delete articles: %w", err)
		}
		if articles, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM crawl WHERE DATE(started_at) = $1`, dayStr)
		if err != nil {
			return fmt.Errorf("delete crawls: %w", err)
		}
		if crawls, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	return articles, crawls, err
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return fmt.Errorf("close rows: %w", closeErr)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

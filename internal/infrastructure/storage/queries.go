package storage

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"AffineNews/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const translatedPredicate = "a.title_translated IS NOT NULL AND a.title_translated <> ''"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps a keyword for a case-insensitive substring ILIKE.
func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}

// limitTo applies LIMIT only for a positive limit; zero or less means unbounded.
func limitTo(q sq.SelectBuilder, limit int) sq.SelectBuilder {
	if limit > 0 {
		return q.Limit(uint64(limit))
	}
	return q
}

// inRange keeps the timestamp lower bound and calendar-day upper bound.
func inRange(rng domain.DateRange) sq.And {
	return sq.And{
		sq.Expr("a.publish_at >= ?", rng.Start.UTC()),
		sq.Expr("DATE(a.publish_at) <= ?", rng.EndDay()),
	}
}

func searchQuery(keywords []string, rng domain.DateRange, country string) sq.SelectBuilder {
	anyKeyword := sq.Or{}
	for _, kw := range keywords {
		anyKeyword = append(anyKeyword, sq.Expr("a.title_translated ILIKE ?", likePattern(kw)))
	}

	q := psql.Select("a.url", "a.title_translated", "p.url", "a.publish_at", "a.lang", "p.iso").
		From("article a").
		Join("paper p ON p.id = a.paper_id").
		Where(translatedPredicate).
		Where(anyKeyword).
		Where(inRange(rng))
	if country != "" {
		q = q.Where(sq.Eq{"p.country": country})
	}
	return q.OrderBy("a.publish_at DESC", "a.url")
}

func nearestQuery(vector []float32, rng domain.DateRange, threshold float64, limit int) sq.SelectBuilder {
	vec := pgvector.NewVector(vector)
	q := psql.Select("a.url", "a.title_translated", "p.url", "a.publish_at", "a.lang", "p.iso").
		Column(sq.Expr("1 - (a.title_embedding <=> ?) AS similarity", vec)).
		From("article a").
		Join("paper p ON p.id = a.paper_id").
		Where("a.title_embedding IS NOT NULL").
		Where(inRange(rng)).
		Where(sq.Expr("1 - (a.title_embedding <=> ?) > ?", vec, threshold)).
		OrderBy("similarity DESC")
	return limitTo(q, limit)
}

func dailyCountsQuery(keyword string, rng domain.DateRange, window domain.Window) sq.SelectBuilder {
	daily := sq.Select("DATE(a.publish_at) AS day", "p.iso AS iso", "COUNT(*) AS total").
		From("article a").
		Join("paper p ON p.id = a.paper_id").
		Where(sq.Expr("a.title_translated ILIKE ?", likePattern(keyword))).
		Where(sq.Expr("DATE(a.publish_at) >= ?", rng.StartDay())).
		Where(sq.Expr("DATE(a.publish_at) <= ?", rng.EndDay())).
		GroupBy("day", "p.iso")

	rolling := fmt.Sprintf(
		"AVG(total) OVER (PARTITION BY iso ORDER BY day ROWS BETWEEN %d PRECEDING AND %d FOLLOWING) AS rolling",
		window.Before, window.After)

	return psql.Select("TO_CHAR(day, 'YYYY-MM-DD') AS date", "iso", "total").
		Column(rolling).
		FromSelect(daily, "daily").
		OrderBy("iso", "day")
}

func papersInRangeQuery(rng domain.DateRange) sq.SelectBuilder {
	return psql.Select("p.iso", "p.url").
		Distinct().
		From("paper p").
		Join("article a ON a.paper_id = p.id").
		Where(inRange(rng)).
		OrderBy("p.iso", "p.url")
}

func comparisonsQuery(sourceISO string) sq.SelectBuilder {
	q := psql.Select("source_country_iso", "target_country_iso", "mentions", "avg_favorability", "positive", "negative").
		From("country_comparisons")
	if sourceISO != "" {
		q = q.Where(sq.Eq{"source_country_iso": sourceISO})
	}
	return q.OrderBy("mentions DESC", "source_country_iso", "target_country_iso")
}

func pendingTranslationQuery(limit int) sq.SelectBuilder {
	q := pendingBase().
		Where("(a.title_translated IS NULL OR a.title_translated = '')").
		OrderBy("a.publish_at ASC", "a.url")
	return limitTo(q, limit)
}

func pendingEmbeddingQuery(limit int, since time.Time) sq.SelectBuilder {
	q := pendingBase().
		Where(translatedPredicate).
		Where("a.title_embedding IS NULL")
	if !since.IsZero() {
		q = q.Where(sq.Expr("a.publish_at >= ?", since.UTC()))
	}
	return limitTo(q.OrderBy("a.publish_at ASC", "a.url"), limit)
}

func pendingAnnotationQuery(limit int, since time.Time) sq.SelectBuilder {
	q := pendingBase().
		Where(translatedPredicate).
		Where("a.annotated_at IS NULL")
	if !since.IsZero() {
		q = q.Where(sq.Expr("a.publish_at >= ?", since.UTC()))
	}
	return limitTo(q.OrderBy("a.publish_at DESC", "a.url"), limit)
}

func pendingBase() sq.SelectBuilder {
	return psql.Select("a.url", "a.title", "COALESCE(a.title_translated, '')", "a.lang", "p.iso", "a.publish_at").
		From("article a").
		Join("paper p ON p.id = a.paper_id")
}

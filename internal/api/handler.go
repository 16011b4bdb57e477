package api

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
	"AffineNews/internal/usecase"
)

// Querier is the read-side the handlers depend on.
type Querier interface {
	SearchArticles(ctx context.Context, keywords, dateStart, dateEnd, country string) (map[string][]domain.ArticleHit, error)
	SemanticSearch(ctx context.Context, query, dateStart, dateEnd string) (map[string][]domain.ArticleHit, error)
	RollingCountryCounts(ctx context.Context, keyword, dateStart, dateEnd string) (map[string][]domain.CountryDay, error)
	PapersInRange(ctx context.Context, dateStart, dateEnd string) (map[string][]string, error)
	CountryComparisons(ctx context.Context, sourceISO string) ([]domain.CountryComparison, error)
}

var _ Querier = (*usecase.QueryEngine)(nil)

// Handler serves the query endpoints.
type Handler struct {
	engine       Querier
	papersMaxAge time.Duration
	queryMaxAge  time.Duration
	log          *slog.Logger
}

// NewHandler builds the HTTP handlers over engine.
func NewHandler(engine Querier, papersMaxAge, queryMaxAge time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{engine: engine, papersMaxAge: papersMaxAge, queryMaxAge: queryMaxAge, log: logger}
}

// Search handles GET /api/search.
func (h *Handler) Search(c echo.Context) error {
	hits, err := h.engine.SearchArticles(c.Request().Context(),
		c.QueryParam("query"), c.QueryParam("date_start"), c.QueryParam("date_end"), c.QueryParam("country"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.cached(c, hits, h.queryMaxAge)
}

// Semantic handles GET /api/semantic.
func (h *Handler) Semantic(c echo.Context) error {
	hits, err := h.engine.SemanticSearch(c.Request().Context(),
		c.QueryParam("query"), c.QueryParam("date_start"), c.QueryParam("date_end"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.cached(c, hits, h.queryMaxAge)
}

// Papers handles GET /api/papers.
func (h *Handler) Papers(c echo.Context) error {
	papers, err := h.engine.PapersInRange(c.Request().Context(), c.QueryParam("date_start"), c.QueryParam("date_end"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.cached(c, papers, h.papersMaxAge)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(c echo.Context) error {
	series, err := h.engine.RollingCountryCounts(c.Request().Context(),
		c.QueryParam("query"), c.QueryParam("date_start"), c.QueryParam("date_end"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.cached(c, series, h.queryMaxAge)
}

// Comparisons handles GET /api/comparisons.
func (h *Handler) Comparisons(c echo.Context) error {
	rows, err := h.engine.CountryComparisons(c.Request().Context(), c.QueryParam("source"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Health handles GET /healthz.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// cached writes v as JSON with a content ETag, answering 304 when the client copy matches.
func (h *Handler) cached(c echo.Context, v any, maxAge time.Duration) error {
	body, err := json.Marshal(v)
	if err != nil {
		return h.fail(c, fmt.Errorf("encode response: %w", err))
	}

	sum := sha1.Sum(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	header := c.Response().Header()
	header.Set("ETag", etag)
	if maxAge > 0 {
		header.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	}

	if etagMatches(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, body)
}

func etagMatches(ifNoneMatch, etag string) bool {
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

func (h *Handler) fail(c echo.Context, err error) error {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.JSON(status, map[string]string{"error": msg})
}

// mapError converts domain errors into a status code and public message.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, usecase.ErrSemanticUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AffineNews/internal/metrics"
)

// NewServer registers routes and middleware on a fresh echo instance.
func NewServer(h *Handler, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(accessLog(logger))
	e.Use(requestMetrics())

	e.GET("/api/search", h.Search)
	e.GET("/api/semantic", h.Semantic)
	e.GET("/api/papers", h.Papers)
	e.GET("/api/stats", h.Stats)
	e.GET("/api/comparisons", h.Comparisons)
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// Serve runs e on addr until ctx is cancelled, then shuts down within grace.
func Serve(ctx context.Context, e *echo.Echo, addr string, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// errorHandler renders framework errors (404, 405) as {"error": ...}.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "internal error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(status)
			}
		} else if logger != nil {
			logger.Error("unhandled error", "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, map[string]string{"error": msg})
	}
}

func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordRequest(route, strconv.Itoa(c.Response().Status), time.Since(start))
			return nil
		}
	}
}

func accessLog(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if logger != nil {
				req := c.Request()
				logger.Debug("request completed",
					"method", req.Method,
					"path", req.URL.Path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds())
			}
			return err
		}
	}
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
	"AffineNews/internal/metrics"
	"AffineNews/internal/ports"
)

// EmbeddingDeps wires the embedding stage.
type EmbeddingDeps struct {
	Articles   ports.ArticleRepository
	Embedder   ports.Embedder
	Locker     ports.Locker
	Logger     *slog.Logger
	BatchSize  int
	Dimensions int
	MaxAge     time.Duration
	Timeout    time.Duration
	Now        func() time.Time
}

// EmbeddingStage stores title vectors of translated articles.
type EmbeddingStage struct {
	articles   ports.ArticleRepository
	embedder   ports.Embedder
	locker     ports.Locker
	log        *slog.Logger
	batchSize  int
	dimensions int
	maxAge     time.Duration
	timeout    time.Duration
	now        func() time.Time
}

// NewEmbeddingStage constructs the stage.
func NewEmbeddingStage(deps EmbeddingDeps) *EmbeddingStage {
	s := &EmbeddingStage{
		articles:   deps.Articles,
		embedder:   deps.Embedder,
		locker:     deps.Locker,
		log:        deps.Logger,
		batchSize:  deps.BatchSize,
		dimensions: deps.Dimensions,
		maxAge:     deps.MaxAge,
		timeout:    deps.Timeout,
		now:        deps.Now,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// EmbedPending embeds up to limit translated titles that have no vector yet.
func (s *EmbeddingStage) EmbedPending(ctx context.Context, limit int) (domain.StageResult, error) {
	var result domain.StageResult
	err := withLock(ctx, s.locker, lockEmbedding, func() error {
		var runErr error
		result, runErr = s.run(ctx, limit)
		return runErr
	})
	metrics.RecordStage("embedding", result.Processed, len(result.Errors))
	return result, err
}

func (s *EmbeddingStage) run(ctx context.Context, limit int) (domain.StageResult, error) {
	var result domain.StageResult
	if s.embedder == nil {
		return result, fmt.Errorf("embedding stage has no embedder")
	}

	var since time.Time
	if s.maxAge > 0 {
		since = s.now().Add(-s.maxAge)
	}
	pending, err := s.articles.PendingEmbedding(ctx, limit, since)
	if err != nil {
		return result, fmt.Errorf("load pending embeddings: %w", err)
	}

	for start := 0; start < len(pending); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch := pending[start:min(start+s.batchSize, len(pending))]
		texts := make([]string, len(batch))
		for i, a := range batch {
			texts[i] = a.TitleTranslated
		}

		callCtx, cancel := withTimeout(ctx, s.timeout)
		vectors, err := s.embedder.Embed(callCtx, texts, domain.EmbedDocument)
		cancel()
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		if err != nil {
			s.log.Warn("embedding batch failed", "size", len(batch), "error", err)
			for _, a := range batch {
				result.Errors = append(result.Errors, domain.NewItemError(a.URL, err))
			}
			continue
		}

		for i, a := range batch {
			vec := vectors[i]
			if s.dimensions > 0 && len(vec) != s.dimensions {
				result.Errors = append(result.Errors, domain.NewItemError(a.URL,
					fmt.Errorf("vector has %d dimensions, want %d", len(vec), s.dimensions)))
				continue
			}
			written, err := s.articles.SaveEmbedding(ctx, a.URL, vec)
			if err != nil {
				return result, fmt.Errorf("save embedding %s: %w", a.URL, err)
			}
			if written {
				result.Processed++
			}
		}
	}

	s.log.Info("embedding finished", "pending", len(pending), "embedded", result.Processed, "errors", len(result.Errors))
	return result, nil
}

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

// AnnotationDeps wires the country annotation stage.
type AnnotationDeps struct {
	Repository ports.AnnotationRepository
	Extractor  ports.CountryExtractor
	Locker     ports.Locker
	Logger     *slog.Logger
	MaxAge     time.Duration
	Timeout    time.Duration
	Now        func() time.Time
}

// AnnotationStage records which foreign country each recent title is about.
type AnnotationStage struct {
	repo      ports.AnnotationRepository
	extractor ports.CountryExtractor
	locker    ports.Locker
	log       *slog.Logger
	maxAge    time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewAnnotationStage(deps AnnotationDeps) *AnnotationStage {
	s := &AnnotationStage{
		repo:      deps.Repository,
		extractor: deps.Extractor,
		locker:    deps.Locker,
		log:       deps.Logger,
		maxAge:    deps.MaxAge,
		timeout:   deps.Timeout,
		now:       deps.Now,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// AnnotatePending annotates up to limit recent articles, newest first, and
// refreshes the comparison view when any reference was stored.
func (s *AnnotationStage) AnnotatePending(ctx context.Context, limit int) (domain.StageResult, error) {
	var result domain.StageResult
	err := withLock(ctx, s.locker, lockAnnotation, func() error {
		var runErr error
		result, runErr = s.run(ctx, limit)
		return runErr
	})
	metrics.RecordStage("annotation", result.Processed, len(result.Errors))
	return result, err
}

func (s *AnnotationStage) run(ctx context.Context, limit int) (domain.StageResult, error) {
	var result domain.StageResult
	if s.extractor == nil {
		return result, fmt.Errorf("annotation stage has no extractor")
	}

	var since time.Time
	if s.maxAge > 0 {
		since = s.now().Add(-s.maxAge)
	}
	pending, err := s.repo.PendingAnnotation(ctx, limit, since)
	if err != nil {
		return result, fmt.Errorf("load pending annotations: %w", err)
	}

	references := 0
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		callCtx, cancel := withTimeout(ctx, s.timeout)
		mention, err := s.extractor.ExtractMention(callCtx, a.TitleTranslated, a.PaperISO)
		cancel()
		if err != nil {
			result.Errors = append(result.Errors, domain.NewItemError(a.URL, err))
			continue
		}

		mention = domain.NormalizeMention(mention, a.PaperISO)
		var ref *domain.CountryReference
		if mention.TargetISO != "" {
			ref = &domain.CountryReference{
				ArticleURL:       a.URL,
				SourceCountryISO: a.PaperISO,
				TargetCountryISO: mention.TargetISO,
				Favorability:     mention.Favorability,
			}
		}
		if err := s.repo.SaveAnnotation(ctx, a.URL, ref, s.now()); err != nil {
			return result, fmt.Errorf("save annotation %s: %w", a.URL, err)
		}
		result.Processed++
		if ref != nil {
			references++
		}
	}

	if references > 0 {
		if err := s.repo.RefreshComparisons(ctx); err != nil {
			return result, fmt.Errorf("refresh comparisons: %w", err)
		}
	}

	s.log.Info("annotation finished", "pending", len(pending), "annotated", result.Processed, "references", references, "errors", len(result.Errors))
	return result, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
)

// PipelineDeps wires the stages run by one worker cycle. Nil stages are skipped.
type PipelineDeps struct {
	Crawler          *Crawler
	Translation      *TranslationStage
	Embedding        *EmbeddingStage
	Annotation       *AnnotationStage
	Logger           *slog.Logger
	MaxArticles      int
	TranslationLimit int
	EmbeddingLimit   int
	AnnotationLimit  int
}

// Pipeline runs crawl, translation, embedding and annotation in order.
type Pipeline struct {
	deps PipelineDeps
	log  *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{deps: deps, log: log}
}

// RunCycle executes every configured step. A failing step is logged and does
// not stop later steps; the joined step errors are returned.
func (p *Pipeline) RunCycle(ctx context.Context, trigger time.Time) error {
	start := time.Now()
	p.log.Info("pipeline cycle started", "trigger", trigger)

	var errs []error
	step := func(name string, fn func() error) {
		if ctx.Err() != nil {
			return
		}
		err := fn()
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrStageBusy):
			p.log.Info("step skipped, another worker holds the lock", "step", name)
		default:
			p.log.Error("pipeline step failed", "step", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c := p.deps.Crawler; c != nil {
		step("crawl", func() error {
			_, err := c.CrawlAll(ctx, p.deps.MaxArticles)
			return err
		})
	}
	if s := p.deps.Translation; s != nil {
		step("translate", func() error {
			_, err := s.TranslatePending(ctx, p.deps.TranslationLimit)
			return err
		})
	}
	if s := p.deps.Embedding; s != nil {
		step("embed", func() error {
			_, err := s.EmbedPending(ctx, p.deps.EmbeddingLimit)
			return err
		})
	}
	if s := p.deps.Annotation; s != nil {
		step("annotate", func() error {
			_, err := s.AnnotatePending(ctx, p.deps.AnnotationLimit)
			return err
		})
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	p.log.Info("pipeline cycle finished", "elapsed", time.Since(start), "failed_steps", len(errs))
	return errors.Join(errs...)
}

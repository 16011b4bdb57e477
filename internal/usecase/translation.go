package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
	"AffineNews/internal/metrics"
	"AffineNews/internal/ports"
)

// TranslationDeps wires the translation stage.
type TranslationDeps struct {
	Articles   ports.ArticleRepository
	Translator ports.Translator
	Locker     ports.Locker
	Logger     *slog.Logger
	BatchSize  int
	Timeout    time.Duration
}

// TranslationStage fills translated titles of pending articles.
type TranslationStage struct {
	articles   ports.ArticleRepository
	translator ports.Translator
	locker     ports.Locker
	log        *slog.Logger
	batchSize  int
	timeout    time.Duration
}

// NewTranslationStage constructs the stage.
func NewTranslationStage(deps TranslationDeps) *TranslationStage {
	s := &TranslationStage{
		articles:   deps.Articles,
		translator: deps.Translator,
		locker:     deps.Locker,
		log:        deps.Logger,
		batchSize:  deps.BatchSize,
		timeout:    deps.Timeout,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	return s
}

// TranslatePending translates up to limit untranslated titles. Titles already
// in the target language are copied without a provider call.
func (s *TranslationStage) TranslatePending(ctx context.Context, limit int) (domain.StageResult, error) {
	var result domain.StageResult
	err := withLock(ctx, s.locker, lockTranslation, func() error {
		var runErr error
		result, runErr = s.run(ctx, limit)
		return runErr
	})
	metrics.RecordStage("translation", result.Processed, len(result.Errors))
	return result, err
}

func (s *TranslationStage) run(ctx context.Context, limit int) (domain.StageResult, error) {
	var result domain.StageResult

	pending, err := s.articles.PendingTranslation(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("load pending translations: %w", err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	var order []string
	groups := map[string][]domain.PendingArticle{}
	for _, a := range pending {
		lang := domain.NormalizeLang(a.Lang)
		if _, ok := groups[lang]; !ok {
			order = append(order, lang)
		}
		groups[lang] = append(groups[lang], a)
	}

	for _, lang := range order {
		items := groups[lang]
		if lang == domain.TargetLang {
			for _, a := range items {
				if err := s.save(ctx, a, a.Title, &result); err != nil {
					return result, err
				}
			}
			continue
		}

		if s.translator == nil {
			for _, a := range items {
				result.Errors = append(result.Errors, domain.NewItemError(a.URL, errors.New("no translator configured")))
			}
			continue
		}

		for start := 0; start < len(items); start += s.batchSize {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			batch := items[start:min(start+s.batchSize, len(items))]
			if err := s.translateBatch(ctx, lang, batch, &result); err != nil {
				return result, err
			}
		}
	}

	s.log.Info("translation finished", "pending", len(pending), "translated", result.Processed, "errors", len(result.Errors))
	return result, nil
}

// translateBatch returns only repository errors; provider failures are recorded per item.
func (s *TranslationStage) translateBatch(ctx context.Context, lang string, batch []domain.PendingArticle, result *domain.StageResult) error {
	texts := make([]string, len(batch))
	for i, a := range batch {
		texts[i] = a.Title
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	translated, err := s.translator.Translate(callCtx, texts, lang, domain.TargetLang)
	cancel()
	if err == nil && len(translated) == len(batch) {
		for i, a := range batch {
			if err := s.saveTranslated(ctx, a, translated[i], result); err != nil {
				return err
			}
		}
		return nil
	}

	s.log.Warn("batch translation failed, retrying per article", "lang", lang, "size", len(batch), "error", err)
	for _, a := range batch {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		callCtx, cancel := withTimeout(ctx, s.timeout)
		one, err := s.translator.Translate(callCtx, []string{a.Title}, lang, domain.TargetLang)
		cancel()
		if err == nil && len(one) != 1 {
			err = fmt.Errorf("translator returned %d results for 1 text", len(one))
		}
		if err != nil {
			result.Errors = append(result.Errors, domain.NewItemError(a.URL, err))
			continue
		}
		if err := s.saveTranslated(ctx, a, one[0], result); err != nil {
			return err
		}
	}
	return nil
}

func (s *TranslationStage) saveTranslated(ctx context.Context, a domain.PendingArticle, text string, result *domain.StageResult) error {
	text = strings.TrimSpace(text)
	if text == "" {
		result.Errors = append(result.Errors, domain.NewItemError(a.URL, errors.New("empty translation")))
		return nil
	}
	return s.save(ctx, a, text, result)
}

func (s *TranslationStage) save(ctx context.Context, a domain.PendingArticle, text string, result *domain.StageResult) error {
	written, err := s.articles.SaveTranslation(ctx, a.URL, text)
	if err != nil {
		return fmt.Errorf("save translation %s: %w", a.URL, err)
	}
	if written {
		result.Processed++
	} else {
		s.log.Debug("translation already stored", "url", a.URL)
	}
	return nil
}

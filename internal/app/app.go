package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"AffineNews/internal/api"
	"AffineNews/internal/config"
	"AffineNews/internal/domain"
	"AffineNews/internal/infrastructure/llm"
	"AffineNews/internal/infrastructure/ml"
	"AffineNews/internal/infrastructure/objectstore"
	"AffineNews/internal/infrastructure/parser"
	"AffineNews/internal/infrastructure/scheduler"
	"AffineNews/internal/infrastructure/storage"
	"AffineNews/internal/infrastructure/telegram"
	"AffineNews/internal/infrastructure/translation"
	"AffineNews/internal/logging"
	"AffineNews/internal/ports"
	"AffineNews/internal/scanner"
	"AffineNews/internal/usecase"
)

// Store is everything the use cases need from persistence.
type Store interface {
	ports.PaperRepository
	ports.CrawlRepository
	ports.ArticleRepository
	ports.AnnotationRepository
	ports.QueryRepository
	ports.TopicRepository
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	store  Store
	locker ports.Locker

	translator ports.Translator
	embedder   ports.Embedder
	extractor  ports.CountryExtractor
	notifier   ports.Notifier

	crawlerOnce sync.Once
	crawler     *usecase.Crawler

	translation *usecase.TranslationStage
	embedding   *usecase.EmbeddingStage
	annotation  *usecase.AnnotationStage
	query       *usecase.QueryEngine
	reconciler  *usecase.Reconciler
}

// New opens the Postgres pool and builds the application on top of it.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := Assemble(ctx, cfg, baseLogger, storage.NewPostgresRepository(db), storage.NewAdvisoryLocker(db))
	a.db = db
	return a, nil
}

// Assemble builds the application over an existing store. Collaborators whose
// credentials are missing stay unset; stages that need them report per-item errors.
func Assemble(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, store Store, locker ports.Locker) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, log: baseLogger, store: store, locker: locker}

	if cfg.Translation.APIKey != "" {
		tr, err := translation.NewGoogleTranslator(ctx, cfg.Translation)
		if err != nil {
			baseLogger.Warn("translator disabled", "error", err)
		} else {
			a.translator = tr
		}
	}

	if emb, err := newEmbedder(cfg.Embedding); err != nil {
		baseLogger.Warn("embedder disabled", "provider", cfg.Embedding.Provider, "error", err)
	} else {
		a.embedder = emb
	}

	if cfg.ChatGPT.APIKey != "" {
		a.extractor = llm.NewChatGPTClient(cfg.ChatGPT)
	}

	if n := telegram.NewNotifier(cfg.Notifications.Telegram); n.Enabled() {
		a.notifier = n
	}

	a.translation = usecase.NewTranslationStage(usecase.TranslationDeps{
		Articles:   store,
		Translator: a.translator,
		Locker:     locker,
		Logger:     baseLogger.With("component", "translation"),
		BatchSize:  cfg.Translation.BatchSize,
		Timeout:    cfg.Translation.Timeout,
	})
	a.embedding = usecase.NewEmbeddingStage(usecase.EmbeddingDeps{
		Articles:   store,
		Embedder:   a.embedder,
		Locker:     locker,
		Logger:     baseLogger.With("component", "embedding"),
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
		MaxAge:     cfg.Embedding.MaxAge,
		Timeout:    cfg.Embedding.Timeout,
	})
	a.annotation = usecase.NewAnnotationStage(usecase.AnnotationDeps{
		Repository: store,
		Extractor:  a.extractor,
		Locker:     locker,
		Logger:     baseLogger.With("component", "annotation"),
		MaxAge:     cfg.Annotation.MaxAge,
		Timeout:    cfg.Annotation.Timeout,
	})
	a.query = usecase.NewQueryEngine(usecase.QueryDeps{
		Repository:            store,
		Embedder:              a.embedder,
		SimilarityThreshold:   cfg.Query.SimilarityThreshold,
		SemanticLimit:         cfg.Query.SemanticLimit,
		MinArticlesPerCountry: cfg.Query.MinArticlesPerCountry,
		Window:                domain.Window{Before: cfg.Query.WindowBefore, After: cfg.Query.WindowAfter},
		EmbedTimeout:          cfg.Embedding.Timeout,
	})
	a.reconciler = usecase.NewReconciler(store, baseLogger.With("component", "reconciler"))
	return a
}

func newEmbedder(cfg config.EmbeddingConfig) (ports.Embedder, error) {
	switch cfg.Provider {
	case "cohere":
		c, err := ml.NewCohereClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("gemini api key is empty")
		}
		return ml.NewGeminiClient(cfg), nil
	}
}

// Crawler builds the crawl executor on first use. The language detector is
// large, so commands that never crawl do not pay for it.
func (a *Application) Crawler() *usecase.Crawler {
	a.crawlerOnce.Do(func() {
		fetcher := parser.NewFetcher(parser.FetcherOptions{
			Client:      &http.Client{Timeout: a.cfg.Crawler.RequestTimeout},
			UserAgent:   a.cfg.Crawler.UserAgent,
			RatePerHost: a.cfg.Crawler.RatePerHost,
			MaxRetries:  a.cfg.Crawler.MaxRetries,
		})

		registry := scanner.NewRegistry()
		registry.Register(parser.NewFeedScanner(fetcher))
		registry.Register(parser.NewHeuristicScanner(fetcher))

		a.crawler = usecase.NewCrawler(usecase.CrawlerDeps{
			Papers:      a.store,
			Crawls:      a.store,
			Articles:    a.store,
			Links:       parser.NewStrategySource(registry, a.log.With("component", "source")),
			Parser:      parser.NewArticleParser(fetcher, parser.NewLanguageDetector()),
			Notifier:    a.notifier,
			Logger:      a.log.With("component", "crawler"),
			Workers:     a.cfg.Crawler.Workers,
			ItemTimeout: a.cfg.Crawler.RequestTimeout,
		})
	})
	return a.crawler
}

// Translation returns the translation stage.
func (a *Application) Translation() *usecase.TranslationStage { return a.translation }

// Embedding returns the embedding stage.
func (a *Application) Embedding() *usecase.EmbeddingStage { return a.embedding }

// Annotation returns the annotation stage.
func (a *Application) Annotation() *usecase.AnnotationStage { return a.annotation }

// Query returns the read-side engine.
func (a *Application) Query() *usecase.QueryEngine { return a.query }

// Pipeline builds the worker cycle over every stage.
func (a *Application) Pipeline() *usecase.Pipeline {
	return usecase.NewPipeline(usecase.PipelineDeps{
		Crawler:          a.Crawler(),
		Translation:      a.translation,
		Embedding:        a.embedding,
		Annotation:       a.annotation,
		Logger:           a.log.With("component", "pipeline"),
		MaxArticles:      a.cfg.Crawler.MaxArticles,
		TranslationLimit: a.cfg.Translation.Limit,
		EmbeddingLimit:   a.cfg.Embedding.Limit,
		AnnotationLimit:  a.cfg.Annotation.Limit,
	})
}

// SyncSources reconciles the papers table with a sources file. An empty path
// uses the configured one.
func (a *Application) SyncSources(ctx context.Context, path string, opts usecase.SyncOptions) (domain.SyncReport, error) {
	if strings.TrimSpace(path) == "" {
		path = a.cfg.Crawler.SourcesFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("read sources: %w", err)
	}
	sources, err := usecase.DecodeSources(filepath.Base(path), raw)
	if err != nil {
		return domain.SyncReport{}, err
	}
	return a.reconciler.Sync(ctx, sources, opts)
}

// PublishTopics uploads the latest topic batch to the configured bucket.
func (a *Application) PublishTopics(ctx context.Context) (domain.TopicBatch, error) {
	pub, err := objectstore.NewS3Publisher(ctx, a.cfg.Storage.S3)
	if err != nil {
		return domain.TopicBatch{}, err
	}
	return usecase.NewTopicsPublisher(a.store, pub, a.cfg.Storage.S3.TopicsKey).Publish(ctx)
}

// Handler builds the HTTP API over the query engine.
func (a *Application) Handler() *api.Handler {
	return api.NewHandler(a.query, a.cfg.Server.PapersMaxAge, a.cfg.Server.QueryMaxAge, a.log.With("component", "api"))
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	e := api.NewServer(a.Handler(), a.log.With("component", "http"))
	return api.Serve(ctx, e, a.cfg.Server.Addr, a.cfg.Server.ShutdownGrace)
}

// RunWorker runs a pipeline cycle on every scheduler tick until ctx is cancelled.
func (a *Application) RunWorker(ctx context.Context) error {
	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval),
		a.Pipeline(),
		a.log.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.log.Info("worker started", "interval", a.cfg.Scheduler.Interval)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownGrace)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.log.Info("worker stopped")
	return nil
}

// Close releases the database pool.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

package ports

import (
	"context"
	"time"

	"AffineNews/internal/domain"
)

// PaperRepository persists the registry of crawled papers.
type PaperRepository interface {
	ListPapers(ctx context.Context) ([]domain.Paper, error)
	GetPaper(ctx context.Context, id string) (domain.Paper, error)
	ApplyPaperChange(ctx context.Context, change domain.PaperChange) error
}

// CrawlRepository tracks crawl executions.
type CrawlRepository interface {
	CreateCrawl(ctx context.Context, crawl domain.Crawl) error
	TransitionCrawl(ctx context.Context, id string, next domain.CrawlStatus) error
	PurgeCrawlsOn(ctx context.Context, day time.Time) (articles, crawls int64, err error)
}

// ArticleRepository stores discovered articles and their enrichment.
type ArticleRepository interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
	InsertArticleIfAbsent(ctx context.Context, article domain.Article) (bool, error)
	PendingTranslation(ctx context.Context, limit int) ([]domain.PendingArticle, error)
	SaveTranslation(ctx context.Context, url, translated string) (bool, error)
	PendingEmbedding(ctx context.Context, limit int, since time.Time) ([]domain.PendingArticle, error)
	SaveEmbedding(ctx context.Context, url string, vector []float32) (bool, error)
}

// AnnotationRepository stores per-article country references.
type AnnotationRepository interface {
	PendingAnnotation(ctx context.Context, limit int, since time.Time) ([]domain.PendingArticle, error)
	SaveAnnotation(ctx context.Context, articleURL string, ref *domain.CountryReference, at time.Time) error
	RefreshComparisons(ctx context.Context) error
}

// QueryRepository answers the read-side queries.
type QueryRepository interface {
	SearchTitles(ctx context.Context, keywords []string, rng domain.DateRange, country string) ([]domain.ArticleHit, error)
	NearestTitles(ctx context.Context, vector []float32, rng domain.DateRange, threshold float64, limit int) ([]domain.ArticleHit, error)
	DailyCounts(ctx context.Context, keyword string, rng domain.DateRange, window domain.Window) ([]domain.CountryDay, error)
	PapersInRange(ctx context.Context, rng domain.DateRange) (map[string][]string, error)
	CountryComparisons(ctx context.Context, sourceISO string) ([]domain.CountryComparison, error)
}

// TopicRepository reads prepared trending topics.
type TopicRepository interface {
	LatestTopics(ctx context.Context) (domain.TopicBatch, error)
}

// Locker serializes stage runs across processes.
type Locker interface {
	TryLock(ctx context.Context, name string) (unlock func(), acquired bool, err error)
}

// LinkSource lists candidate article links found on a category page.
type LinkSource interface {
	Links(ctx context.Context, paper domain.Paper, categoryURL string) ([]domain.Candidate, error)
}

// ArticleParser downloads and extracts a single article page.
type ArticleParser interface {
	Parse(ctx context.Context, rawURL, fallbackLang string) (domain.ParsedArticle, error)
}

// Translator translates a batch of texts from source into target language.
type Translator interface {
	Translate(ctx context.Context, texts []string, source, target string) ([]string, error)
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task domain.EmbedTask) ([][]float32, error)
}

// CountryExtractor asks an LLM which foreign country a title is about.
type CountryExtractor interface {
	ExtractMention(ctx context.Context, title, sourceISO string) (domain.Mention, error)
}

// Notifier streams crawl summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// ObjectPublisher uploads small public documents.
type ObjectPublisher interface {
	Put(ctx context.Context, key string, body []byte, contentType, cacheControl string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
	"AffineNews/internal/metrics"
	"AffineNews/internal/ports"
)

// maxTitleRunes bounds stored titles; longer extractions are page bodies, not headlines.
const maxTitleRunes = 2000

// CrawlerDeps wires the crawl executor.
type CrawlerDeps struct {
	Papers      ports.PaperRepository
	Crawls      ports.CrawlRepository
	Articles    ports.ArticleRepository
	Links       ports.LinkSource
	Parser      ports.ArticleParser
	Notifier    ports.Notifier
	Logger      *slog.Logger
	Workers     int
	ItemTimeout time.Duration
	Now         func() time.Time
	NewID       func() string
}

// Crawler discovers and stores new articles of registered papers.
type Crawler struct {
	papers      ports.PaperRepository
	crawls      ports.CrawlRepository
	articles    ports.ArticleRepository
	links       ports.LinkSource
	parser      ports.ArticleParser
	notifier    ports.Notifier
	log         *slog.Logger
	workers     int
	itemTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// NewCrawler constructs the crawl executor.
func NewCrawler(deps CrawlerDeps) *Crawler {
	c := &Crawler{
		papers:      deps.Papers,
		crawls:      deps.Crawls,
		articles:    deps.Articles,
		links:       deps.Links,
		parser:      deps.Parser,
		notifier:    deps.Notifier,
		log:         deps.Logger,
		workers:     deps.Workers,
		itemTimeout: deps.ItemTimeout,
		now:         deps.Now,
		newID:       deps.NewID,
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.NewString() }
	}
	return c
}

// RunCrawl executes one crawl of paper. Per-item failures are reported in the
// result; repository failures abort the run and are returned.
func (c *Crawler) RunCrawl(ctx context.Context, paper domain.Paper, maxArticles int) (domain.CrawlResult, error) {
	crawl := domain.Crawl{
		ID:          c.newID(),
		PaperID:     paper.ID,
		StartedAt:   c.now(),
		Status:      domain.CrawlPending,
		MaxArticles: maxArticles,
	}
	result := domain.CrawlResult{CrawlID: crawl.ID, PaperID: paper.ID, PaperURL: paper.URL, Status: crawl.Status}
	log := c.log.With("paper", paper.URL, "crawl", crawl.ID)

	if err := c.crawls.CreateCrawl(ctx, crawl); err != nil {
		return result, fmt.Errorf("create crawl for %s: %w", paper.URL, err)
	}
	if err := c.transition(ctx, &crawl, domain.CrawlRunning); err != nil {
		return result, err
	}

	candidates, categoryErrs := c.collect(ctx, paper)
	result.Errors = append(result.Errors, categoryErrs...)

	if len(paper.CategoryURLs) > 0 && len(categoryErrs) == len(paper.CategoryURLs) {
		result.Errors = append(result.Errors, domain.NewItemError(paper.URL, domain.ErrCategoriesUnreachable))
		return c.finish(ctx, &crawl, result, domain.CrawlFailed, log)
	}

	if maxArticles > 0 && len(candidates) > maxArticles {
		candidates = candidates[:maxArticles]
	}

	urls := make([]string, len(candidates))
	for i, cand := range candidates {
		urls[i] = cand.URL
	}
	existing, err := c.articles.ExistingURLs(ctx, urls)
	if err != nil {
		return c.abort(ctx, &crawl, result, fmt.Errorf("load existing urls: %w", err))
	}

	for _, cand := range candidates {
		if existing[cand.URL] {
			result.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, &crawl, result, err)
		}

		article, err := c.fetchArticle(ctx, paper, crawl, cand)
		if err != nil {
			log.Debug("article skipped", "url", cand.URL, "error", err)
			result.Errors = append(result.Errors, domain.NewItemError(cand.URL, err))
			continue
		}

		inserted, err := c.articles.InsertArticleIfAbsent(ctx, article)
		if err != nil {
			return c.abort(ctx, &crawl, result, fmt.Errorf("insert article %s: %w", cand.URL, err))
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	return c.finish(ctx, &crawl, result, domain.CrawlCompleted, log)
}

// collect gathers deduplicated candidates in first-seen order.
func (c *Crawler) collect(ctx context.Context, paper domain.Paper) ([]domain.Candidate, []domain.ItemError) {
	var (
		out  []domain.Candidate
		errs []domain.ItemError
		seen = map[string]bool{}
	)
	for _, categoryURL := range paper.CategoryURLs {
		callCtx, cancel := withTimeout(ctx, c.itemTimeout)
		links, err := c.links.Links(callCtx, paper, categoryURL)
		cancel()
		if err != nil {
			c.log.Warn("category unreachable", "paper", paper.URL, "category", categoryURL, "error", err)
			errs = append(errs, domain.NewItemError(categoryURL, err))
			continue
		}
		for _, link := range links {
			key, err := domain.CanonicalURL(link.URL)
			if err != nil || key == "" || seen[key] {
				continue
			}
			seen[key] = true
			link.URL = key
			out = append(out, link)
		}
	}
	return out, errs
}

func (c *Crawler) fetchArticle(ctx context.Context, paper domain.Paper, crawl domain.Crawl, cand domain.Candidate) (domain.Article, error) {
	callCtx, cancel := withTimeout(ctx, c.itemTimeout)
	defer cancel()

	parsed, err := c.parser.Parse(callCtx, cand.URL, paper.Lang)
	if err != nil {
		return domain.Article{}, err
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = strings.TrimSpace(cand.Title)
	}
	if title == "" {
		return domain.Article{}, errors.New("article has no title")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return domain.Article{}, fmt.Errorf("title longer than %d characters", maxTitleRunes)
	}

	lang := domain.NormalizeLang(parsed.Lang)
	if lang == "" {
		lang = domain.NormalizeLang(paper.Lang)
	}

	publishAt := crawl.StartedAt
	switch {
	case parsed.PublishedAt != nil && !parsed.PublishedAt.IsZero():
		publishAt = *parsed.PublishedAt
	case cand.PublishedAt != nil && !cand.PublishedAt.IsZero():
		publishAt = *cand.PublishedAt
	case parsed.URLDate != nil:
		publishAt = *parsed.URLDate
	}

	return domain.Article{
		URL:       cand.URL,
		ImageURL:  parsed.ImageURL,
		Title:     title,
		Lang:      lang,
		PublishAt: publishAt.UTC(),
		PaperID:   paper.ID,
		CrawlID:   crawl.ID,
	}, nil
}

func (c *Crawler) transition(ctx context.Context, crawl *domain.Crawl, next domain.CrawlStatus) error {
	if err := crawl.Transition(next); err != nil {
		return err
	}
	if err := c.crawls.TransitionCrawl(ctx, crawl.ID, next); err != nil {
		return fmt.Errorf("mark crawl %s %s: %w", crawl.ID, next, err)
	}
	return nil
}

func (c *Crawler) finish(ctx context.Context, crawl *domain.Crawl, result domain.CrawlResult, status domain.CrawlStatus, log *slog.Logger) (domain.CrawlResult, error) {
	if err := c.transition(ctx, crawl, status); err != nil {
		return result, err
	}
	result.Status = crawl.Status
	result.Elapsed = c.now().Sub(crawl.StartedAt)
	metrics.RecordCrawl(string(result.Status), result.Inserted, result.Skipped, len(result.Errors), result.Elapsed)
	log.Info("crawl finished",
		"status", result.Status,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"elapsed", result.Elapsed)
	return result, nil
}

// abort marks the crawl failed on a best-effort basis and returns cause.
func (c *Crawler) abort(ctx context.Context, crawl *domain.Crawl, result domain.CrawlResult, cause error) (domain.CrawlResult, error) {
	if err := c.transition(context.WithoutCancel(ctx), crawl, domain.CrawlFailed); err != nil {
		c.log.Error("mark crawl failed", "crawl", crawl.ID, "error", err)
	} else {
		result.Status = crawl.Status
	}
	result.Elapsed = c.now().Sub(crawl.StartedAt)
	metrics.RecordCrawl(string(domain.CrawlFailed), result.Inserted, result.Skipped, len(result.Errors), result.Elapsed)
	return result, fmt.Errorf("crawl %s: %w", result.PaperURL, cause)
}

// RunAll crawls papers through a bounded worker pool. A failing paper never
// aborts its siblings.
func (c *Crawler) RunAll(ctx context.Context, papers []domain.Paper, maxArticles int) domain.BatchReport {
	start := c.now()
	results := make([]*domain.CrawlResult, len(papers))
	failures := make([]*domain.ItemError, len(papers))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, paper := range papers {
		g.Go(func() error {
			res, err := c.RunCrawl(ctx, paper, maxArticles)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.log.Error("crawl aborted", "paper", paper.URL, "error", err)
				fail := domain.NewItemError(paper.URL, err)
				failures[i] = &fail
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	report := domain.BatchReport{Elapsed: c.now().Sub(start)}
	for i := range papers {
		switch {
		case failures[i] != nil:
			report.Failed = append(report.Failed, *failures[i])
		case results[i] != nil:
			report.Results = append(report.Results, *results[i])
		}
	}

	summary := FormatBatchReport(report)
	c.log.Info("crawl batch finished", "papers", len(papers), "success_rate", report.SuccessRate(), "elapsed", report.Elapsed)
	c.log.Debug("crawl batch summary\n" + summary)
	if c.notifier != nil && len(papers) > 0 {
		if err := c.notifier.PublishDigest(ctx, "```\n"+summary+"```"); err != nil {
			c.log.Warn("publish crawl summary", "error", err)
		}
	}
	return report
}

// CrawlAll crawls every registered paper.
func (c *Crawler) CrawlAll(ctx context.Context, maxArticles int) (domain.BatchReport, error) {
	papers, err := c.papers.ListPapers(ctx)
	if err != nil {
		return domain.BatchReport{}, fmt.Errorf("list papers: %w", err)
	}
	return c.RunAll(ctx, papers, maxArticles), nil
}

// CrawlPaper crawls a single registered paper selected by id or URL.
func (c *Crawler) CrawlPaper(ctx context.Context, idOrURL string, maxArticles int) (domain.CrawlResult, error) {
	id := idOrURL
	if strings.Contains(idOrURL, "://") {
		id = domain.PaperID(strings.TrimSpace(idOrURL))
	}
	paper, err := c.papers.GetPaper(ctx, id)
	if err != nil {
		return domain.CrawlResult{}, fmt.Errorf("load paper %s: %w", idOrURL, err)
	}
	return c.RunCrawl(ctx, paper, maxArticles)
}

// PurgeDay deletes the crawls started on day together with their articles.
func (c *Crawler) PurgeDay(ctx context.Context, day time.Time) (articles, crawls int64, err error) {
	articles, crawls, err = c.crawls.PurgeCrawlsOn(ctx, day)
	if err != nil {
		return 0, 0, fmt.Errorf("purge crawls on %s: %w", domain.DayOf(day), err)
	}
	c.log.Info("purged crawls", "day", domain.DayOf(day), "articles", articles, "crawls", crawls)
	return articles, crawls, nil
}

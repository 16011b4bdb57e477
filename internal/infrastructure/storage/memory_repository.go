package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

// MemoryRepository is an in-process implementation of every repository port.
// It mirrors the Postgres predicates and is used by tests and dry runs.
type MemoryRepository struct {
	mu          sync.Mutex
	papers      map[string]domain.Paper
	crawls      map[string]domain.Crawl
	articles    map[string]domain.Article
	references  map[string]domain.CountryReference
	comparisons []domain.CountryComparison
	topics      []domain.TopicBatch
	locks       map[string]bool
}

var (
	_ ports.PaperRepository      = (*MemoryRepository)(nil)
	_ ports.CrawlRepository      = (*MemoryRepository)(nil)
	_ ports.ArticleRepository    = (*MemoryRepository)(nil)
	_ ports.AnnotationRepository = (*MemoryRepository)(nil)
	_ ports.QueryRepository      = (*MemoryRepository)(nil)
	_ ports.TopicRepository      = (*MemoryRepository)(nil)
	_ ports.Locker               = (*MemoryRepository)(nil)
)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		papers:     map[string]domain.Paper{},
		crawls:     map[string]domain.Crawl{},
		articles:   map[string]domain.Article{},
		references: map[string]domain.CountryReference{},
		locks:      map[string]bool{},
	}
}

// ListPapers returns papers ordered by URL.
func (m *MemoryRepository) ListPapers(_ context.Context) ([]domain.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Paper, 0, len(m.papers))
	for _, p := range m.papers {
		out = append(out, clonePaper(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// GetPaper loads a paper by id.
func (m *MemoryRepository) GetPaper(_ context.Context, id string) (domain.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.papers[id]
	if !ok {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", id, domain.ErrNotFound)
	}
	return clonePaper(p), nil
}

// ApplyPaperChange applies one reconciler decision atomically.
func (m *MemoryRepository) ApplyPaperChange(_ context.Context, change domain.PaperChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := change.Paper
	current, exists := m.papers[p.ID]
	switch change.Kind {
	case domain.ChangeCreate:
		if exists {
			return fmt.Errorf("insert paper %s: duplicate id", p.URL)
		}
		current = domain.Paper{ID: p.ID, URL: p.URL, CreatedAt: time.Now().UTC()}
	case domain.ChangeUpdate:
		if !exists {
			return fmt.Errorf("update paper %s: %w", p.URL, domain.ErrNotFound)
		}
	default:
		return fmt.Errorf("unknown change kind %q", change.Kind)
	}

	if change.Kind == domain.ChangeCreate || len(change.FieldsChanged) > 0 {
		current.Country, current.ISO, current.Lang = p.Country, p.ISO, p.Lang
		current.Whitelist = append([]string(nil), p.Whitelist...)
	}

	removed := map[string]bool{}
	for _, u := range change.CategoriesRemoved {
		removed[u] = true
	}
	kept := make([]string, 0, len(current.CategoryURLs)+len(change.CategoriesAdded))
	present := map[string]bool{}
	for _, u := range current.CategoryURLs {
		if !removed[u] {
			kept = append(kept, u)
			present[u] = true
		}
	}
	for _, u := range change.CategoriesAdded {
		if !present[u] {
			kept = append(kept, u)
			present[u] = true
		}
	}
	current.CategoryURLs = kept

	m.papers[p.ID] = current
	return nil
}

// CreateCrawl records a crawl.
func (m *MemoryRepository) CreateCrawl(_ context.Context, crawl domain.Crawl) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.crawls[crawl.ID]; ok {
		return fmt.Errorf("insert crawl %s: duplicate id", crawl.ID)
	}
	crawl.StartedAt = crawl.StartedAt.UTC()
	m.crawls[crawl.ID] = crawl
	return nil
}

// TransitionCrawl applies a legal status change.
func (m *MemoryRepository) TransitionCrawl(_ context.Context, id string, next domain.CrawlStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.crawls[id]
	if !ok {
		return fmt.Errorf("crawl %s: %w", id, domain.ErrNotFound)
	}
	if err := c.Transition(next); err != nil {
		return fmt.Errorf("crawl %s: %w", id, err)
	}
	m.crawls[id] = c
	return nil
}

// Crawl returns a stored crawl for inspection.
func (m *MemoryRepository) Crawl(id string) (domain.Crawl, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.crawls[id]
	return c, ok
}

// PurgeCrawlsOn removes crawls started on day and their articles.
func (m *MemoryRepository) PurgeCrawlsOn(_ context.Context, day time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := domain.DayOf(day)
	doomed := map[string]bool{}
	for id, c := range m.crawls {
		if domain.DayOf(c.StartedAt) == target {
			doomed[id] = true
		}
	}

	var articles int64
	for u, a := range m.articles {
		if doomed[a.CrawlID] {
			delete(m.articles, u)
			articles++
		}
	}
	for id := range doomed {
		delete(m.crawls, id)
	}
	return articles, int64(len(doomed)), nil
}

// ExistingURLs returns the subset of urls already stored.
func (m *MemoryRepository) ExistingURLs(_ context.Context, urls []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]bool{}
	for _, u := range urls {
		if _, ok := m.articles[u]; ok {
			out[u] = true
		}
	}
	return out, nil
}

// InsertArticleIfAbsent stores a new article; existing URLs are left untouched.
func (m *MemoryRepository) InsertArticleIfAbsent(_ context.Context, a domain.Article) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.articles[a.URL]; ok {
		return false, nil
	}
	a.PublishAt = a.PublishAt.UTC()
	m.articles[a.URL] = a
	return true, nil
}

// Article returns a stored article for inspection.
func (m *MemoryRepository) Article(url string) (domain.Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[url]
	return a, ok
}

// ArticleCount returns the number of stored articles.
func (m *MemoryRepository) ArticleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles)
}

// PendingTranslation lists untranslated articles oldest first.
func (m *MemoryRepository) PendingTranslation(_ context.Context, limit int) ([]domain.PendingArticle, error) {
	return m.pending(limit, false, func(a domain.Article) bool { return !a.Translated() }), nil
}

// SaveTranslation writes a translation only while the article is untranslated.
func (m *MemoryRepository) SaveTranslation(_ context.Context, url, translated string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[url]
	if !ok || a.Translated() {
		return false, nil
	}
	a.TitleTranslated = translated
	m.articles[url] = a
	return true, nil
}

// PendingEmbedding lists translated articles without vectors.
func (m *MemoryRepository) PendingEmbedding(_ context.Context, limit int, since time.Time) ([]domain.PendingArticle, error) {
	return m.pending(limit, false, func(a domain.Article) bool {
		return a.Translated() && a.TitleEmbedding == nil && (since.IsZero() || !a.PublishAt.Before(since))
	}), nil
}

// SaveEmbedding writes a vector only while none is stored.
func (m *MemoryRepository) SaveEmbedding(_ context.Context, url string, vector []float32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[url]
	if !ok || a.TitleEmbedding != nil {
		return false, nil
	}
	a.TitleEmbedding = append([]float32(nil), vector...)
	m.articles[url] = a
	return true, nil
}

// PendingAnnotation lists recent translated, unannotated articles newest first.
func (m *MemoryRepository) PendingAnnotation(_ context.Context, limit int, since time.Time) ([]domain.PendingArticle, error) {
	return m.pending(limit, true, func(a domain.Article) bool {
		return a.Translated() && a.AnnotatedAt == nil && (since.IsZero() || !a.PublishAt.Before(since))
	}), nil
}

// SaveAnnotation stores an optional reference and marks the article annotated.
func (m *MemoryRepository) SaveAnnotation(_ context.Context, articleURL string, ref *domain.CountryReference, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[articleURL]
	if !ok {
		return fmt.Errorf("article %s: %w", articleURL, domain.ErrNotFound)
	}
	if ref != nil {
		m.references[articleURL+"|"+ref.TargetCountryISO] = *ref
	}
	stamp := at.UTC()
	a.AnnotatedAt = &stamp
	m.articles[articleURL] = a
	return nil
}

// RefreshComparisons rebuilds the comparison snapshot from stored references.
func (m *MemoryRepository) RefreshComparisons(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	type pair struct{ source, target string }
	agg := map[pair]*domain.CountryComparison{}
	sums := map[pair]int{}
	for _, ref := range m.references {
		k := pair{ref.SourceCountryISO, ref.TargetCountryISO}
		c, ok := agg[k]
		if !ok {
			c = &domain.CountryComparison{SourceCountryISO: k.source, TargetCountryISO: k.target}
			agg[k] = c
		}
		c.Mentions++
		sums[k] += ref.Favorability
		switch {
		case ref.Favorability > 0:
			c.Positive++
		case ref.Favorability < 0:
			c.Negative++
		}
	}

	out := make([]domain.CountryComparison, 0, len(agg))
	for k, c := range agg {
		c.AvgFavorability = float64(sums[k]) / float64(c.Mentions)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mentions != out[j].Mentions {
			return out[i].Mentions > out[j].Mentions
		}
		if out[i].SourceCountryISO != out[j].SourceCountryISO {
			return out[i].SourceCountryISO < out[j].SourceCountryISO
		}
		return out[i].TargetCountryISO < out[j].TargetCountryISO
	})
	m.comparisons = out
	return nil
}

// SearchTitles applies the keyword and date predicates to translated titles.
func (m *MemoryRepository) SearchTitles(_ context.Context, keywords []string, rng domain.DateRange, country string) ([]domain.ArticleHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ArticleHit
	for _, a := range m.articles {
		p := m.papers[a.PaperID]
		if !a.Translated() || !rng.Contains(a.PublishAt) || !domain.MatchesAny(a.TitleTranslated, keywords) {
			continue
		}
		if country != "" && p.Country != country {
			continue
		}
		out = append(out, hitOf(a, p))
	}
	sortHitsByDate(out)
	return out, nil
}

// NearestTitles ranks stored vectors by cosine similarity.
func (m *MemoryRepository) NearestTitles(_ context.Context, vector []float32, rng domain.DateRange, threshold float64, limit int) ([]domain.ArticleHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ArticleHit
	for _, a := range m.articles {
		if a.TitleEmbedding == nil || !rng.Contains(a.PublishAt) {
			continue
		}
		sim := cosine(vector, a.TitleEmbedding)
		if sim <= threshold {
			continue
		}
		hit := hitOf(a, m.papers[a.PaperID])
		hit.Similarity = sim
		out = append(out, hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DailyCounts counts keyword matches per day and country with the rolling average.
func (m *MemoryRepository) DailyCounts(_ context.Context, keyword string, rng domain.DateRange, window domain.Window) ([]domain.CountryDay, error) {
	m.mu.Lock()
	type key struct{ day, iso string }
	counts := map[key]int{}
	for _, a := range m.articles {
		if !a.Translated() || !rng.ContainsDay(a.PublishAt) {
			continue
		}
		if !strings.Contains(strings.ToLower(a.TitleTranslated), strings.ToLower(keyword)) {
			continue
		}
		counts[key{domain.DayOf(a.PublishAt), m.papers[a.PaperID].ISO}]++
	}
	m.mu.Unlock()

	rows := make([]domain.CountryDay, 0, len(counts))
	for k, total := range counts {
		rows = append(rows, domain.CountryDay{Date: k.day, ISO: k.iso, Total: total})
	}

	var out []domain.CountryDay
	series := domain.BuildCountrySeries(rows, window.Before, window.After)
	isos := make([]string, 0, len(series))
	for iso := range series {
		isos = append(isos, iso)
	}
	sort.Strings(isos)
	for _, iso := range isos {
		out = append(out, series[iso]...)
	}
	return out, nil
}

// PapersInRange lists papers with articles in range grouped by ISO.
func (m *MemoryRepository) PapersInRange(_ context.Context, rng domain.DateRange) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]bool{}
	out := map[string][]string{}
	for _, a := range m.articles {
		if !rng.Contains(a.PublishAt) || seen[a.PaperID] {
			continue
		}
		p, ok := m.papers[a.PaperID]
		if !ok {
			continue
		}
		seen[a.PaperID] = true
		out[p.ISO] = append(out[p.ISO], p.URL)
	}
	for iso := range out {
		sort.Strings(out[iso])
	}
	return out, nil
}

// CountryComparisons returns the last refreshed snapshot.
func (m *MemoryRepository) CountryComparisons(_ context.Context, sourceISO string) ([]domain.CountryComparison, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.CountryComparison, 0, len(m.comparisons))
	for _, c := range m.comparisons {
		if sourceISO == "" || c.SourceCountryISO == sourceISO {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddTopics appends a topics batch.
func (m *MemoryRepository) AddTopics(batch domain.TopicBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, batch)
}

// LatestTopics returns the most recently added batch.
func (m *MemoryRepository) LatestTopics(_ context.Context) (domain.TopicBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.topics) == 0 {
		return domain.TopicBatch{}, fmt.Errorf("daily topics: %w", domain.ErrNotFound)
	}
	return m.topics[len(m.topics)-1], nil
}

// TryLock takes a process-local named lock.
func (m *MemoryRepository) TryLock(_ context.Context, name string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[name] {
		return nil, false, nil
	}
	m.locks[name] = true
	return func() {
		m.mu.Lock()
		delete(m.locks, name)
		m.mu.Unlock()
	}, true, nil
}

func (m *MemoryRepository) pending(limit int, newestFirst bool, keep func(domain.Article) bool) []domain.PendingArticle {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PendingArticle
	for _, a := range m.articles {
		if !keep(a) {
			continue
		}
		out = append(out, domain.PendingArticle{
			URL:             a.URL,
			Title:           a.Title,
			TitleTranslated: a.TitleTranslated,
			Lang:            a.Lang,
			PaperISO:        m.papers[a.PaperID].ISO,
			PublishAt:       a.PublishAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishAt.Equal(out[j].PublishAt) {
			if newestFirst {
				return out[i].PublishAt.After(out[j].PublishAt)
			}
			return out[i].PublishAt.Before(out[j].PublishAt)
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func hitOf(a domain.Article, p domain.Paper) domain.ArticleHit {
	return domain.ArticleHit{
		URL:       a.URL,
		Title:     a.TitleTranslated,
		PaperURL:  p.URL,
		PublishAt: a.PublishAt,
		Lang:      a.Lang,
		ISO:       p.ISO,
	}
}

func sortHitsByDate(hits []domain.ArticleHit) {
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].PublishAt.Equal(hits[j].PublishAt) {
			return hits[i].PublishAt.After(hits[j].PublishAt)
		}
		return hits[i].URL < hits[j].URL
	})
}

func clonePaper(p domain.Paper) domain.Paper {
	p.CategoryURLs = append([]string(nil), p.CategoryURLs...)
	p.Whitelist = append([]string(nil), p.Whitelist...)
	return p
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

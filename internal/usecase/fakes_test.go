package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/infrastructure/storage"
)

type fakeLinks struct {
	byCategory map[string][]domain.Candidate
	failing    map[string]bool
}

func (f *fakeLinks) Links(_ context.Context, _ domain.Paper, categoryURL string) ([]domain.Candidate, error) {
	if f.failing[categoryURL] {
		return nil, errors.New("connection refused")
	}
	return f.byCategory[categoryURL], nil
}

type fakeParser struct {
	mu       sync.Mutex
	articles map[string]domain.ParsedArticle
	calls    int
}

func (f *fakeParser) Parse(_ context.Context, rawURL, fallbackLang string) (domain.ParsedArticle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	a, ok := f.articles[rawURL]
	if !ok {
		return domain.ParsedArticle{}, errors.New("404 not found")
	}
	if a.Lang == "" {
		a.Lang = fallbackLang
	}
	return a, nil
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls [][]string
	dict  map[string]string
}

func (f *fakeTranslator) Translate(_ context.Context, texts []string, _, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))

	out := make([]string, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "bad") {
			return nil, errors.New("invalid text")
		}
		if v, ok := f.dict[t]; ok {
			out[i] = v
			continue
		}
		out[i] = "EN " + t
	}
	return out, nil
}

type fakeEmbedder struct {
	dims   int
	fail   bool
	calls  int
	byText map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ domain.EmbedTask) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.byText[t]; ok {
			out[i] = v
			continue
		}
		vec := make([]float32, f.dims)
		for j := range vec {
			vec[j] = float32(len(t)+j) / 10
		}
		out[i] = vec
	}
	return out, nil
}

type fakeExtractor struct {
	byTitle map[string]domain.Mention
}

func (f *fakeExtractor) ExtractMention(_ context.Context, title, _ string) (domain.Mention, error) {
	m, ok := f.byTitle[title]
	if !ok {
		return domain.Mention{}, errors.New("rate limited")
	}
	return m, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, digest)
	return nil
}

type fakePublisher struct {
	key, contentType, cacheControl string
	body                           []byte
}

func (f *fakePublisher) Put(_ context.Context, key string, body []byte, contentType, cacheControl string) error {
	f.key, f.body, f.contentType, f.cacheControl = key, body, contentType, cacheControl
	return nil
}

// failingInserts breaks article inserts to exercise the abort path.
type failingInserts struct {
	*storage.MemoryRepository
}

func (f failingInserts) InsertArticleIfAbsent(context.Context, domain.Article) (bool, error) {
	return false, errors.New("connection reset")
}

var crawlStart = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func seedPaper(repo *storage.MemoryRepository, entry domain.SourceEntry) domain.Paper {
	p := entry.Paper()
	if err := repo.ApplyPaperChange(context.Background(), domain.PaperChange{
		Kind:            domain.ChangeCreate,
		Paper:           p,
		CategoriesAdded: p.CategoryURLs,
	}); err != nil {
		panic(err)
	}
	return p
}

func seedArticle(repo *storage.MemoryRepository, a domain.Article) {
	if _, err := repo.InsertArticleIfAbsent(context.Background(), a); err != nil {
		panic(err)
	}
}

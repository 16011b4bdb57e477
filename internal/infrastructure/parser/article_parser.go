package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"

	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

const minLanguageConfidence = 0.5

// ArticleParser downloads article pages and extracts their metadata.
type ArticleParser struct {
	fetcher  *Fetcher
	detector lingua.LanguageDetector
}

var _ ports.ArticleParser = (*ArticleParser)(nil)

// NewArticleParser wires the fetcher and an optional language detector.
func NewArticleParser(fetcher *Fetcher, detector lingua.LanguageDetector) *ArticleParser {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &ArticleParser{fetcher: fetcher, detector: detector}
}

// NewLanguageDetector builds a lingua detector over all supported languages.
func NewLanguageDetector() lingua.LanguageDetector {
	return lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		WithLowAccuracyMode().
		Build()
}

// Parse extracts title, lead image, language and publish date. Language falls
// back from the document lang attribute to detection and then fallbackLang.
func (p *ArticleParser) Parse(ctx context.Context, rawURL, fallbackLang string) (domain.ParsedArticle, error) {
	page, err := p.fetcher.Get(ctx, rawURL)
	if err != nil {
		return domain.ParsedArticle{}, err
	}

	article, err := readability.FromReader(bytes.NewReader(page.Body), page.URL)
	if err != nil {
		return domain.ParsedArticle{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	parsed := domain.ParsedArticle{
		Title:    collapseSpace(article.Title),
		ImageURL: strings.TrimSpace(article.Image),
		Lang:     domain.NormalizeLang(article.Language),
	}

	if parsed.Lang == "" {
		parsed.Lang = p.detect(parsed.Title + " " + article.Excerpt)
	}
	if parsed.Lang == "" {
		parsed.Lang = domain.NormalizeLang(fallbackLang)
	}

	if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
		t := article.PublishedTime.UTC()
		parsed.PublishedAt = &t
	}
	parsed.URLDate = DateFromURL(rawURL)

	return parsed, nil
}

func (p *ArticleParser) detect(text string) string {
	text = strings.TrimSpace(text)
	if p.detector == nil || text == "" {
		return ""
	}
	lang, ok := p.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	if p.detector.ComputeLanguageConfidence(text, lang) < minLanguageConfidence {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

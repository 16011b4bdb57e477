package scanner

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"AffineNews/internal/domain"
)

const (
	// HTML extracts article links heuristically from a category page.
	HTML = "html"
	// Feed reads article links from an RSS or Atom document.
	Feed = "feed"
)

// Request carries all parameters required to scan one category page.
type Request struct {
	Paper       domain.Paper
	CategoryURL string
}

// Scanner captures a single link discovery strategy.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Candidate, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// StrategyFor picks the scanner name for a category URL.
func StrategyFor(categoryURL string) string {
	parsed, err := url.Parse(categoryURL)
	if err != nil {
		return HTML
	}
	path := strings.ToLower(strings.TrimSuffix(parsed.Path, "/"))
	switch {
	case strings.HasSuffix(path, ".xml"), strings.HasSuffix(path, ".rss"), strings.HasSuffix(path, ".atom"):
		return Feed
	case strings.HasSuffix(path, "/feed"), strings.HasSuffix(path, "/rss"), path == "/feed", path == "/rss":
		return Feed
	default:
		return HTML
	}
}

package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"AffineNews/internal/domain"
	"AffineNews/internal/scanner"
)

// FeedScanner reads category links from RSS or Atom feeds.
type FeedScanner struct {
	fetcher *Fetcher
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner wires the page fetcher.
func NewFeedScanner(fetcher *Fetcher) *FeedScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &FeedScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return scanner.Feed
}

// Scan returns feed items in feed order. Item dates become publish hints.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	page, err := f.fetcher.Get(ctx, req.CategoryURL)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", req.CategoryURL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", req.CategoryURL, err)
	}

	out := make([]domain.Candidate, 0, len(feed.Items))
	seen := map[string]struct{}{}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		if abs, err := page.URL.Parse(link); err == nil {
			abs.Fragment = ""
			abs.RawFragment = ""
			link = abs.String()
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		candidate := domain.Candidate{URL: link, Title: collapseSpace(item.Title)}
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			candidate.PublishedAt = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			candidate.PublishedAt = &t
		}
		out = append(out, candidate)
	}
	return out, nil
}

package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"AffineNews/internal/domain"
	"AffineNews/internal/scanner"
)

const (
	minHeadlineLength = 14
	minSlugLength     = 20
	shortSlugLength   = 16
	maxTitleDepth     = 4
)

var (
	pathDateExpr    = regexp.MustCompile(`(/\d{4}/\d{1,2}[/-]\d{1,2}/|\d{4}-\d{1,2}-\d{1,2})`)
	htmlSuffixExpr  = regexp.MustCompile(`\.s?html?$`)
	longNumericExpr = regexp.MustCompile(`\d{6,}`)
)

// HeuristicScanner extracts likely article links from a category page.
type HeuristicScanner struct {
	fetcher *Fetcher
}

var _ scanner.Scanner = (*HeuristicScanner)(nil)

// NewHeuristicScanner wires the page fetcher.
func NewHeuristicScanner(fetcher *Fetcher) *HeuristicScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &HeuristicScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (h *HeuristicScanner) Name() string {
	return scanner.HTML
}

// Scan fetches the category page and returns accepted links in document order.
func (h *HeuristicScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	page, err := h.fetcher.Get(ctx, req.CategoryURL)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", req.CategoryURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	base, err := url.Parse(req.CategoryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid category url %s: %w", req.CategoryURL, err)
	}

	filter := newLinkFilter(base, req.Paper.Whitelist)
	return filter.extract(doc), nil
}

type linkFilter struct {
	base      *url.URL
	whitelist []*regexp.Regexp
	prefixes  []string
}

func newLinkFilter(base *url.URL, whitelist []string) *linkFilter {
	f := &linkFilter{base: base}
	for _, pattern := range whitelist {
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			if u, perr := url.Parse(pattern); perr == nil {
				f.prefixes = append(f.prefixes, comparablePath(u))
			}
			continue
		}
		f.whitelist = append(f.whitelist, re)
	}
	return f
}

func (f *linkFilter) extract(doc *goquery.Document) []domain.Candidate {
	var out []domain.Candidate
	seen := map[string]struct{}{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		title := findTitle(a, 0)
		link, ok := f.accept(href, title)
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		out = append(out, domain.Candidate{URL: link, Title: title})
	})

	return out
}

// accept applies the article heuristics and returns the absolute link.
func (f *linkFilter) accept(href, text string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	if text != "" && !strings.ContainsFunc(text, unicode.IsLetter) {
		return "", false
	}
	if utf8.RuneCountInString(text) < minHeadlineLength {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	full := f.base.ResolveReference(ref)
	full.Fragment = ""
	full.RawFragment = ""
	if full.Scheme != "http" && full.Scheme != "https" {
		return "", false
	}
	if full.Path == "" || full.Path == "/" || full.String() == f.base.String() {
		return "", false
	}
	link := full.String()

	for _, re := range f.whitelist {
		if re.MatchString(link) {
			return link, true
		}
	}
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(comparablePath(full), prefix) {
			return link, true
		}
	}

	if !strings.HasPrefix(comparablePath(full), comparablePath(f.base)) {
		return "", false
	}
	if normalizeHost(full.Host) != normalizeHost(f.base.Host) {
		return "", false
	}

	path := full.Path
	slug := path
	if trimmed := strings.TrimRight(path, "/"); trimmed != "" {
		slug = trimmed[strings.LastIndex(trimmed, "/")+1:]
	}
	if slug == "" || slug == "/" {
		return "", false
	}
	decoded, err := url.PathUnescape(slug)
	if err != nil {
		decoded = slug
	}

	hasDate := pathDateExpr.MatchString(path)
	shortSlug := utf8.RuneCountInString(decoded) < shortSlugLength && !looksRandom(decoded)
	shortURL := len(link) < len(f.base.String())*2
	if shortSlug && shortURL && !hasDate {
		return "", false
	}

	if htmlSuffixExpr.MatchString(path) ||
		hasDate ||
		longNumericExpr.MatchString(path) ||
		utf8.RuneCountInString(decoded) > minSlugLength ||
		looksRandom(slug) {
		return link, true
	}
	return "", false
}

// findTitle returns the link text or, when it is too short, the longest sibling text.
func findTitle(sel *goquery.Selection, depth int) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	best := collapseSpace(sel.Text())
	if utf8.RuneCountInString(best) > 4 {
		return best
	}

	parent := sel.Parent()
	if parent.Length() == 0 {
		return best
	}
	parent.Children().Each(func(_ int, sibling *goquery.Selection) {
		if text := collapseSpace(sibling.Text()); utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best = text
		}
	})
	if utf8.RuneCountInString(best) < 5 && depth < maxTitleDepth {
		return findTitle(parent, depth+1)
	}
	return best
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// comparablePath renders host+path+query without scheme and www for prefix tests.
func comparablePath(u *url.URL) string {
	s := normalizeHost(u.Host) + u.EscapedPath()
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return s
}

// looksRandom flags identifier-like slugs such as "a8f3k2q9x1" that rarely name categories.
func looksRandom(s string) bool {
	if utf8.RuneCountInString(s) < 8 {
		return false
	}
	var letters, digits, vowels, transitions int
	prevDigit := false
	for i, r := range strings.ToLower(s) {
		switch {
		case r >= '0' && r <= '9':
			digits++
			if i > 0 && !prevDigit {
				transitions++
			}
			prevDigit = true
		case r >= 'a' && r <= 'z':
			letters++
			if strings.ContainsRune("aeiouy", r) {
				vowels++
			}
			if i > 0 && prevDigit {
				transitions++
			}
			prevDigit = false
		default:
			return false
		}
	}
	if letters > 0 && digits > 0 && transitions >= 3 {
		return true
	}
	return digits == 0 && letters >= 8 && float64(vowels)/float64(letters) < 0.2
}

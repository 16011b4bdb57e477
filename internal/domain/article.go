package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// TargetLang is the language every title is translated into.
const TargetLang = "en"

// Article is a single news item discovered by a crawl.
type Article struct {
	URL             string
	ImageURL        string
	Title           string
	TitleTranslated string
	Lang            string
	PublishAt       time.Time
	PaperID         string
	CrawlID         string
	TitleEmbedding  []float32
	AnnotatedAt     *time.Time
}

// Translated reports whether a non-empty translated title is stored.
func (a Article) Translated() bool {
	return strings.TrimSpace(a.TitleTranslated) != ""
}

// Candidate is a link discovered on a category page, before download.
type Candidate struct {
	URL         string
	Title       string
	PublishedAt *time.Time
}

// ParsedArticle is the extraction result for a downloaded article page.
type ParsedArticle struct {
	Title       string
	ImageURL    string
	Lang        string
	PublishedAt *time.Time
	// URLDate is a date embedded in the article URL path, if any.
	URLDate *time.Time
}

// PendingArticle is the projection consumed by the translation, embedding and annotation stages.
type PendingArticle struct {
	URL             string
	Title           string
	TitleTranslated string
	Lang            string
	PaperISO        string
	PublishAt       time.Time
}

// ArticleHit is a query result row.
type ArticleHit struct {
	URL        string    `json:"article_url"`
	Title      string    `json:"title"`
	PaperURL   string    `json:"paper_url"`
	PublishAt  time.Time `json:"publish_at"`
	Lang       string    `json:"lang"`
	ISO        string    `json:"-"`
	Similarity float64   `json:"similarity,omitempty"`
}

// CountryDay is one point of the per-country daily series.
type CountryDay struct {
	Date    string  `json:"date"`
	ISO     string  `json:"iso"`
	Total   int     `json:"total"`
	Rolling float64 `json:"rolling"`
}

// CanonicalURL normalizes a link for deduplication by dropping its fragment.
func CanonicalURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), nil
}

// NormalizeLang reduces a language tag to its lowercase primary subtag.
func NormalizeLang(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// ParseKeywords splits a comma-separated list, trimming and dropping empty entries.
func ParseKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchesAny reports whether title contains any keyword, case-insensitively.
func MatchesAny(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

const dayLayout = "2006-01-02"

// DateRange is the query window. Start is compared as a timestamp and End as
// a calendar day, so articles later on the End day still match.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD (or RFC 3339) bounds in UTC.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := parseDay(start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: date_start: %v", ErrInvalidQuery, err)
	}
	e, err := parseDay(end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: date_end: %v", ErrInvalidQuery, err)
	}
	return DateRange{Start: s, End: e}, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}
	if t, err := time.Parse(dayLayout, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
	}
	return t.UTC(), nil
}

// EndDay returns the calendar day of End formatted as YYYY-MM-DD.
func (r DateRange) EndDay() string {
	return r.End.UTC().Format(dayLayout)
}

// StartDay returns the calendar day of Start formatted as YYYY-MM-DD.
func (r DateRange) StartDay() string {
	return r.Start.UTC().Format(dayLayout)
}

// Contains applies the article search predicate.
func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.Start) && DayOf(t) <= r.EndDay()
}

// ContainsDay applies the statistics predicate, inclusive calendar days on both sides.
func (r DateRange) ContainsDay(t time.Time) bool {
	day := DayOf(t)
	return day >= r.StartDay() && day <= r.EndDay()
}

// DayOf formats the UTC calendar day of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Window is the rolling-average frame in rows before and after the current day.
type Window struct {
	Before int
	After  int
}

// RollingAverage computes a centered moving average over totals using a window
// of before preceding and after following rows, shrinking at the edges.
func RollingAverage(totals []int, before, after int) []float64 {
	out := make([]float64, len(totals))
	for i := range totals {
		lo := max(0, i-before)
		hi := min(len(totals)-1, i+after)
		sum := 0
		for j := lo; j <= hi; j++ {
			sum += totals[j]
		}
		out[i] = float64(sum) / float64(hi-lo+1)
	}
	return out
}

// BuildCountrySeries groups per-day counts by ISO in ascending date order and
// fills the rolling average.
func BuildCountrySeries(rows []CountryDay, before, after int) map[string][]CountryDay {
	grouped := make(map[string][]CountryDay)
	for _, row := range rows {
		grouped[row.ISO] = append(grouped[row.ISO], row)
	}
	for iso, series := range grouped {
		sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
		totals := make([]int, len(series))
		for i, day := range series {
			totals[i] = day.Total
		}
		for i, avg := range RollingAverage(totals, before, after) {
			series[i].Rolling = avg
		}
		grouped[iso] = series
	}
	return grouped
}

// GroupHits buckets hits by ISO, preserving the incoming order within each bucket.
func GroupHits(hits []ArticleHit) map[string][]ArticleHit {
	out := make(map[string][]ArticleHit)
	for _, hit := range hits {
		out[hit.ISO] = append(out[hit.ISO], hit)
	}
	return out
}

// EmbedTask selects the embedding task type of a provider call.
type EmbedTask string

const (
	EmbedDocument EmbedTask = "document"
	EmbedQuery    EmbedTask = "query"
)

package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Paper is a news source crawled by the pipeline.
type Paper struct {
	ID           string
	URL          string
	Country      string
	ISO          string
	Lang         string
	CategoryURLs []string
	Whitelist    []string
	CreatedAt    time.Time
}

// PaperID derives the stable identifier of a paper from its URL.
func PaperID(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// SourceEntry is one record of the external source definition file.
type SourceEntry struct {
	URL          string   `json:"url" yaml:"url"`
	Country      string   `json:"country" yaml:"country"`
	ISO          string   `json:"iso" yaml:"iso"`
	Lang         string   `json:"lang" yaml:"lang"`
	CategoryURLs []string `json:"category_urls" yaml:"category_urls"`
	Whitelist    []string `json:"whitelist" yaml:"whitelist"`
}

// Validate checks required fields of a source entry.
func (s SourceEntry) Validate() error {
	parsed, err := url.Parse(strings.TrimSpace(s.URL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: url %q must be absolute http(s)", ErrInvalidSource, s.URL)
	}
	if strings.TrimSpace(s.ISO) == "" {
		return fmt.Errorf("%w: %s has no iso code", ErrInvalidSource, s.URL)
	}
	if strings.TrimSpace(s.Lang) == "" {
		return fmt.Errorf("%w: %s has no language", ErrInvalidSource, s.URL)
	}
	for _, cat := range s.CategoryURLs {
		if strings.TrimSpace(cat) == "" {
			return fmt.Errorf("%w: %s has an empty category url", ErrInvalidSource, s.URL)
		}
	}
	return nil
}

// Paper converts the entry into a paper record. Category URLs keep input order
// with duplicates removed.
func (s SourceEntry) Paper() Paper {
	paperURL := strings.TrimSpace(s.URL)
	return Paper{
		ID:           PaperID(paperURL),
		URL:          paperURL,
		Country:      strings.TrimSpace(s.Country),
		ISO:          strings.TrimSpace(s.ISO),
		Lang:         strings.TrimSpace(s.Lang),
		CategoryURLs: uniqueTrimmed(s.CategoryURLs),
		Whitelist:    uniqueTrimmed(s.Whitelist),
	}
}

func uniqueTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ChangeKind classifies a reconciler decision.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
)

// PaperChange is the computed delta for one paper.
type PaperChange struct {
	Kind              ChangeKind
	Paper             Paper
	FieldsChanged     []string
	CategoriesAdded   []string
	CategoriesRemoved []string
}

// Empty reports whether the change carries no writes.
func (c PaperChange) Empty() bool {
	return c.Kind == ChangeUpdate && len(c.FieldsChanged) == 0 &&
		len(c.CategoriesAdded) == 0 && len(c.CategoriesRemoved) == 0
}

// Summary renders the change as one human-readable line.
func (c PaperChange) Summary() string {
	var parts []string
	if len(c.FieldsChanged) > 0 {
		parts = append(parts, "fields "+strings.Join(c.FieldsChanged, ","))
	}
	if len(c.CategoriesAdded) > 0 {
		parts = append(parts, fmt.Sprintf("+%d categories", len(c.CategoriesAdded)))
	}
	if len(c.CategoriesRemoved) > 0 {
		parts = append(parts, fmt.Sprintf("-%d categories", len(c.CategoriesRemoved)))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s %s", c.Kind, c.Paper.URL)
	}
	return fmt.Sprintf("%s %s: %s", c.Kind, c.Paper.URL, strings.Join(parts, "; "))
}

// SyncReport summarises a reconciler run.
type SyncReport struct {
	Created int
	Updated int
	Pruned  int
	DryRun  bool
	Changes []PaperChange
}

// Total returns the number of paper records touched.
func (r SyncReport) Total() int {
	return r.Created + r.Updated
}

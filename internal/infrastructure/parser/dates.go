package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"time"
)

var urlDateExprs = []*regexp.Regexp{
	regexp.MustCompile(`/(\d{4})/(\d{1,2})/(\d{1,2})(?:/|$)`),
	regexp.MustCompile(`(?:^|[^\d])(\d{4})-(\d{1,2})-(\d{1,2})(?:[^\d]|$)`),
	regexp.MustCompile(`(?:^|[^\d])(\d{4})(\d{2})(\d{2})(?:[^\d]|$)`),
}

// DateFromURL finds a publication date embedded in an article path.
func DateFromURL(rawURL string) *time.Time {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	for _, expr := range urlDateExprs {
		m := expr.FindStringSubmatch(parsed.Path)
		if m == nil {
			continue
		}
		if t, ok := buildDate(m[1], m[2], m[3]); ok {
			return &t
		}
	}
	return nil
}

func buildDate(ys, ms, ds string) (time.Time, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	if y < 1990 || y > 2100 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

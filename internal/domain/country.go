package domain

import (
	"strings"
	"time"
)

// CountryReference records the foreign country most prominent in an article title.
type CountryReference struct {
	ArticleURL       string
	SourceCountryISO string
	TargetCountryISO string
	Favorability     int
}

// Mention is the extractor verdict for one title. TargetISO is empty when no
// foreign country is referenced.
type Mention struct {
	TargetISO    string
	Favorability int
}

// NormalizeMention clamps the extractor output to valid values.
func NormalizeMention(m Mention, sourceISO string) Mention {
	iso := strings.ToUpper(strings.TrimSpace(m.TargetISO))
	if len(iso) != 3 || iso == "NONE" || strings.EqualFold(iso, sourceISO) {
		iso = ""
	}
	for _, r := range iso {
		if r < 'A' || r > 'Z' {
			iso = ""
			break
		}
	}
	fav := m.Favorability
	if iso == "" || fav < -1 || fav > 1 {
		fav = 0
	}
	return Mention{TargetISO: iso, Favorability: fav}
}

// CountryComparison is a row of the aggregated source x target view.
type CountryComparison struct {
	SourceCountryISO string  `json:"source_country"`
	TargetCountryISO string  `json:"target_country"`
	Mentions         int     `json:"mentions"`
	AvgFavorability  float64 `json:"avg_favorability"`
	Positive         int     `json:"positive"`
	Negative         int     `json:"negative"`
}

// TopicBatch is the newest list of trending topics.
type TopicBatch struct {
	Date      string    `json:"date"`
	Topics    []string  `json:"topics"`
	CreatedAt time.Time `json:"created_at"`
}

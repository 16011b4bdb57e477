package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperIDIsStable(t *testing.T) {
	t.Parallel()

	a := PaperID("https://www.lemonde.fr")
	b := PaperID("https://www.lemonde.fr")
	require.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, PaperID("https://www.nytimes.com"))
}

func TestSourceEntryValidate(t *testing.T) {
	t.Parallel()

	valid := SourceEntry{URL: "https://www.lemonde.fr", ISO: "FRA", Lang: "fr"}
	require.NoError(t, valid.Validate())

	cases := []SourceEntry{
		{URL: "lemonde.fr", ISO: "FRA", Lang: "fr"},
		{URL: "ftp://lemonde.fr", ISO: "FRA", Lang: "fr"},
		{URL: "https://www.lemonde.fr", Lang: "fr"},
		{URL: "https://www.lemonde.fr", ISO: "FRA"},
		{URL: "https://www.lemonde.fr", ISO: "FRA", Lang: "fr", CategoryURLs: []string{" "}},
	}
	for _, c := range cases {
		err := c.Validate()
		require.Error(t, err, "%+v", c)
		assert.True(t, errors.Is(err, ErrInvalidSource))
	}
}

func TestSourceEntryPaperDedupesCategories(t *testing.T) {
	t.Parallel()

	p := SourceEntry{
		URL:          " https://www.lemonde.fr ",
		ISO:          "FRA",
		Lang:         "fr",
		CategoryURLs: []string{"https://www.lemonde.fr/b", "https://www.lemonde.fr/a", "https://www.lemonde.fr/b"},
	}.Paper()

	assert.Equal(t, "https://www.lemonde.fr", p.URL)
	assert.Equal(t, PaperID("https://www.lemonde.fr"), p.ID)
	assert.Equal(t, []string{"https://www.lemonde.fr/b", "https://www.lemonde.fr/a"}, p.CategoryURLs)
}

func TestCrawlTransitions(t *testing.T) {
	t.Parallel()

	c := Crawl{Status: CrawlPending}
	require.NoError(t, c.Transition(CrawlRunning))
	require.NoError(t, c.Transition(CrawlCompleted))
	assert.True(t, c.Status.Terminal())

	err := c.Transition(CrawlFailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, CrawlCompleted, c.Status)

	assert.True(t, CrawlPending.CanTransition(CrawlFailed))
	assert.False(t, CrawlPending.CanTransition(CrawlCompleted))
	assert.ElementsMatch(t, []CrawlStatus{CrawlPending, CrawlRunning}, PreviousStatuses(CrawlFailed))
}

func TestRollingAverageShrinksAtEdges(t *testing.T) {
	t.Parallel()

	totals := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := RollingAverage(totals, 3, 3)

	require.Len(t, got, 10)
	assert.InDelta(t, 2.5, got[0], 1e-9) // (1+2+3+4)/4
	assert.InDelta(t, 3.0, got[1], 1e-9) // (1..5)/5
	assert.InDelta(t, 4.0, got[3], 1e-9) // (1..7)/7
	assert.InDelta(t, 8.5, got[9], 1e-9) // (7+8+9+10)/4
}

func TestBuildCountrySeriesOrdersByDate(t *testing.T) {
	t.Parallel()

	rows := []CountryDay{
		{Date: "2024-01-03", ISO: "USA", Total: 3},
		{Date: "2024-01-01", ISO: "USA", Total: 1},
		{Date: "2024-01-02", ISO: "FRA", Total: 2},
	}
	series := BuildCountrySeries(rows, 3, 3)

	require.Len(t, series["USA"], 2)
	assert.Equal(t, "2024-01-01", series["USA"][0].Date)
	assert.InDelta(t, 2.0, series["USA"][0].Rolling, 1e-9)
	require.Len(t, series["FRA"], 1)
	assert.InDelta(t, 2.0, series["FRA"][0].Rolling, 1e-9)
	_, ok := series["DEU"]
	assert.False(t, ok)
}

func TestDateRangeEndIsCalendarDay(t *testing.T) {
	t.Parallel()

	r, err := ParseDateRange("2024-01-01", "2024-01-05")
	require.NoError(t, err)

	assert.True(t, r.Contains(time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 1, 6, 0, 0, 1, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)))
}

func TestParseDateRangeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseDateRange("yesterday", "2024-01-05")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	_, err = ParseDateRange("2024-01-01", "")
	assert.True(t, errors.Is(err, ErrInvalidQuery))
}

func TestKeywordsOrSemantics(t *testing.T) {
	t.Parallel()

	kws := ParseKeywords(" trump, ,biden ,")
	require.Equal(t, []string{"trump", "biden"}, kws)

	assert.True(t, MatchesAny("Trump rallies in Ohio", kws))
	assert.True(t, MatchesAny("BIDEN signs bill", kws))
	assert.False(t, MatchesAny("Macron visits Berlin", kws))
}

func TestCanonicalURLDropsFragment(t *testing.T) {
	t.Parallel()

	got, err := CanonicalURL("https://example.com/news/a?id=1#comments")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/news/a?id=1", got)
}

func TestNormalizeLang(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "en", NormalizeLang("en-US"))
	assert.Equal(t, "pt", NormalizeLang(" PT_br "))
	assert.Equal(t, "fr", NormalizeLang("fr"))
}

func TestNormalizeMention(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Mention{TargetISO: "CHN", Favorability: -1}, NormalizeMention(Mention{TargetISO: "chn", Favorability: -1}, "USA"))
	assert.Equal(t, Mention{}, NormalizeMention(Mention{TargetISO: "USA", Favorability: 1}, "USA"))
	assert.Equal(t, Mention{TargetISO: "DEU"}, NormalizeMention(Mention{TargetISO: "DEU", Favorability: 7}, "FRA"))
	assert.Equal(t, Mention{}, NormalizeMention(Mention{TargetISO: "none"}, "FRA"))
	assert.Equal(t, Mention{}, NormalizeMention(Mention{TargetISO: "D3U"}, "FRA"))
}

func TestBatchReportTotals(t *testing.T) {
	t.Parallel()

	report := BatchReport{
		Results: []CrawlResult{
			{Status: CrawlCompleted, Inserted: 3, Skipped: 1},
			{Status: CrawlFailed, Errors: []ItemError{{Key: "a", Err: "x"}}},
		},
	}
	inserted, skipped, failed := report.Totals()
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, failed)
	assert.InDelta(t, 0.5, report.SuccessRate(), 1e-9)
}

func TestPaperChangeSummary(t *testing.T) {
	t.Parallel()

	created := PaperChange{Kind: ChangeCreate, Paper: Paper{URL: "https://www.lemonde.fr"}}
	assert.Equal(t, "create https://www.lemonde.fr", created.Summary())

	updated := PaperChange{
		Kind:              ChangeUpdate,
		Paper:             Paper{URL: "https://www.lemonde.fr"},
		FieldsChanged:     []string{"lang", "iso"},
		CategoriesAdded:   []string{"https://www.lemonde.fr/a/"},
		CategoriesRemoved: []string{"https://www.lemonde.fr/b/", "https://www.lemonde.fr/c/"},
	}
	assert.Equal(t, "update https://www.lemonde.fr: fields lang,iso; +1 categories; -2 categories", updated.Summary())
}

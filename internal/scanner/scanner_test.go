package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AffineNews/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.Candidate, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: HTML})

	sc, err := reg.Resolve(HTML)
	require.NoError(t, err)
	assert.Equal(t, HTML, sc.Name())

	_, err = reg.Resolve(Feed)
	assert.EqualError(t, err, "scanner feed is not registered")
}

func TestStrategyFor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.lemonde.fr/international/":      HTML,
		"https://www.lemonde.fr/rss/une.xml":         Feed,
		"https://feeds.bbci.co.uk/news/world/rss":    Feed,
		"https://example.com/politics/feed/":         Feed,
		"https://example.com/feeds/top.atom":         Feed,
		"https://example.com/opinion/feedback-forum": HTML,
	}
	for in, want := range cases {
		assert.Equal(t, want, StrategyFor(in), in)
	}
}

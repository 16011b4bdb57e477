package parser

import (
	"context"
	"fmt"
	"log/slog"

	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
	"AffineNews/internal/scanner"
)

// StrategySource implements LinkSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	logger   *slog.Logger
}

var _ ports.LinkSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry.
func NewStrategySource(reg *scanner.Registry, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		logger:   log,
	}
}

// Links resolves the scanner for the category URL and runs it.
func (s *StrategySource) Links(ctx context.Context, paper domain.Paper, categoryURL string) ([]domain.Candidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	name := scanner.StrategyFor(categoryURL)
	strategy, err := s.registry.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("paper %s: %w", paper.URL, err)
	}

	s.debug("scan category", "paper", paper.URL, "category", categoryURL, "scanner", name)
	results, err := strategy.Scan(ctx, scanner.Request{Paper: paper, CategoryURL: categoryURL})
	if err != nil {
		return nil, err
	}
	s.debug("category produced links", "category", categoryURL, "count", len(results))
	return results, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
	"AffineNews/internal/ports"
)

// SyncOptions controls a reconciler run.
type SyncOptions struct {
	PruneMissing bool
	DryRun       bool
}

// Reconciler upserts the paper registry from a source definition.
type Reconciler struct {
	papers ports.PaperRepository
	log    *slog.Logger
}

// NewReconciler constructs the reconciler.
func NewReconciler(papers ports.PaperRepository, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{papers: papers, log: logger}
}

// Sync validates sources, diffs them against storage and applies each paper
// change on its own. Papers are never deleted; categories are only removed
// when PruneMissing is set.
func (r *Reconciler) Sync(ctx context.Context, sources []domain.SourceEntry, opts SyncOptions) (domain.SyncReport, error) {
	report := domain.SyncReport{DryRun: opts.DryRun}

	if err := validateSources(sources); err != nil {
		return report, err
	}

	current, err := r.papers.ListPapers(ctx)
	if err != nil {
		return report, fmt.Errorf("list papers: %w", err)
	}
	byID := make(map[string]domain.Paper, len(current))
	for _, p := range current {
		byID[p.ID] = p
	}

	for _, entry := range sources {
		want := entry.Paper()
		change := diffPaper(want, byID, opts.PruneMissing)
		if change.Empty() {
			continue
		}

		if !opts.DryRun {
			if err := r.papers.ApplyPaperChange(ctx, change); err != nil {
				return report, fmt.Errorf("apply %s %s: %w", change.Kind, want.URL, err)
			}
		}

		switch change.Kind {
		case domain.ChangeCreate:
			report.Created++
		case domain.ChangeUpdate:
			report.Updated++
		}
		report.Pruned += len(change.CategoriesRemoved)
		report.Changes = append(report.Changes, change)
		r.log.Info("paper reconciled",
			"url", want.URL,
			"kind", change.Kind,
			"fields", change.FieldsChanged,
			"added", len(change.CategoriesAdded),
			"removed", len(change.CategoriesRemoved),
			"dry_run", opts.DryRun)
	}

	return report, nil
}

func validateSources(sources []domain.SourceEntry) error {
	var errs []error
	seen := make(map[string]int, len(sources))
	for i, s := range sources {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		u := strings.TrimSpace(s.URL)
		if prev, ok := seen[u]; ok {
			errs = append(errs, fmt.Errorf("entry %d: %w: duplicate url %s (first at entry %d)", i, domain.ErrInvalidSource, u, prev))
			continue
		}
		seen[u] = i
	}
	return errors.Join(errs...)
}

func diffPaper(want domain.Paper, byID map[string]domain.Paper, prune bool) domain.PaperChange {
	have, exists := byID[want.ID]
	if !exists {
		return domain.PaperChange{
			Kind:            domain.ChangeCreate,
			Paper:           want,
			CategoriesAdded: append([]string(nil), want.CategoryURLs...),
		}
	}

	change := domain.PaperChange{Kind: domain.ChangeUpdate, Paper: want}
	if have.Country != want.Country {
		change.FieldsChanged = append(change.FieldsChanged, "country")
	}
	if have.ISO != want.ISO {
		change.FieldsChanged = append(change.FieldsChanged, "iso")
	}
	if have.Lang != want.Lang {
		change.FieldsChanged = append(change.FieldsChanged, "lang")
	}
	if !slices.Equal(nonEmpty(have.Whitelist), nonEmpty(want.Whitelist)) {
		change.FieldsChanged = append(change.FieldsChanged, "whitelist")
	}

	for _, u := range want.CategoryURLs {
		if !slices.Contains(have.CategoryURLs, u) {
			change.CategoriesAdded = append(change.CategoriesAdded, u)
		}
	}
	if prune {
		for _, u := range have.CategoryURLs {
			if !slices.Contains(want.CategoryURLs, u) {
				change.CategoriesRemoved = append(change.CategoriesRemoved, u)
			}
		}
	}
	return change
}

func nonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

// DecodeSources parses a source definition file. YAML is used for .yaml and
// .yml names, JSON otherwise.
func DecodeSources(name string, data []byte) ([]domain.SourceEntry, error) {
	var entries []domain.SourceEntry
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidSource, name, err)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidSource, name, err)
		}
	}
	return entries, nil
}

package domain

import (
	"fmt"
	"time"
)

// CrawlStatus enumerates crawl lifecycle milestones.
type CrawlStatus string

const (
	CrawlPending   CrawlStatus = "pending"
	CrawlRunning   CrawlStatus = "running"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
)

var crawlTransitions = map[CrawlStatus][]CrawlStatus{
	CrawlPending: {CrawlRunning, CrawlFailed},
	CrawlRunning: {CrawlCompleted, CrawlFailed},
}

// Terminal reports whether no further transitions are allowed.
func (s CrawlStatus) Terminal() bool {
	return s == CrawlCompleted || s == CrawlFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s CrawlStatus) CanTransition(next CrawlStatus) bool {
	for _, allowed := range crawlTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PreviousStatuses lists the statuses from which next can be reached.
func PreviousStatuses(next CrawlStatus) []CrawlStatus {
	var out []CrawlStatus
	for from, targets := range crawlTransitions {
		for _, to := range targets {
			if to == next {
				out = append(out, from)
			}
		}
	}
	return out
}

// Crawl is one execution of the crawl process against one paper.
type Crawl struct {
	ID          string
	PaperID     string
	StartedAt   time.Time
	Status      CrawlStatus
	MaxArticles int
}

// Transition validates and applies a status change.
func (c *Crawl) Transition(next CrawlStatus) error {
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.Status, next)
	}
	c.Status = next
	return nil
}

// ItemError is a per-item failure that did not abort its batch.
type ItemError struct {
	Key string
	Err string
}

func (e ItemError) Error() string {
	return e.Key + ": " + e.Err
}

// NewItemError builds an ItemError from an error value.
func NewItemError(key string, err error) ItemError {
	return ItemError{Key: key, Err: err.Error()}
}

// CrawlResult reports the outcome of a single-paper crawl.
type CrawlResult struct {
	CrawlID  string
	PaperID  string
	PaperURL string
	Status   CrawlStatus
	Inserted int
	Skipped  int
	Errors   []ItemError
	Elapsed  time.Duration
}

// StageResult reports the outcome of a translation, embedding or annotation pass.
type StageResult struct {
	Processed int
	Errors    []ItemError
}

// BatchReport aggregates crawl results across papers.
type BatchReport struct {
	Results []CrawlResult
	Failed  []ItemError
	Elapsed time.Duration
}

// Totals sums inserted, skipped and errored items.
func (b BatchReport) Totals() (inserted, skipped, failed int) {
	for _, r := range b.Results {
		inserted += r.Inserted
		skipped += r.Skipped
		failed += len(r.Errors)
	}
	return inserted, skipped, failed
}

// SuccessRate is the share of papers whose crawl completed.
func (b BatchReport) SuccessRate() float64 {
	total := len(b.Results) + len(b.Failed)
	if total == 0 {
		return 0
	}
	completed := 0
	for _, r := range b.Results {
		if r.Status == CrawlCompleted {
			completed++
		}
	}
	return float64(completed) / float64(total)
}

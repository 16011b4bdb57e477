// Package metrics exposes Prometheus counters for the pipeline and the API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "affinenews"

var (
	// CrawlArticlesTotal counts candidate links by outcome.
	CrawlArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_articles_total",
			Help:      "Candidate article links by outcome (inserted, skipped, failed)",
		},
		[]string{"status"},
	)

	// CrawlsTotal counts finished crawls by terminal status.
	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_total",
			Help:      "Finished crawls by terminal status",
		},
		[]string{"status"},
	)

	// CrawlDuration measures one paper crawl.
	CrawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of a single paper crawl in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// StageItemsTotal counts enrichment items by stage and outcome.
	StageItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Items handled by enrichment stages",
		},
		[]string{"stage", "status"},
	)

	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	// APIRequestDuration measures HTTP API latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of HTTP API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordCrawl records one finished paper crawl.
func RecordCrawl(status string, inserted, skipped, failed int, elapsed time.Duration) {
	CrawlsTotal.WithLabelValues(status).Inc()
	CrawlArticlesTotal.WithLabelValues("inserted").Add(float64(inserted))
	CrawlArticlesTotal.WithLabelValues("skipped").Add(float64(skipped))
	CrawlArticlesTotal.WithLabelValues("failed").Add(float64(failed))
	CrawlDuration.Observe(elapsed.Seconds())
}

// RecordStage records one enrichment stage run.
func RecordStage(stage string, processed, failed int) {
	StageItemsTotal.WithLabelValues(stage, "processed").Add(float64(processed))
	StageItemsTotal.WithLabelValues(stage, "failed").Add(float64(failed))
}

// RecordRequest records one API request.
func RecordRequest(route, code string, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(route, code).Inc()
	APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStage(t *testing.T) {
	before := testutil.ToFloat64(StageItemsTotal.WithLabelValues("translate", "processed"))
	RecordStage("translate", 3, 1)
	assert.Equal(t, before+3, testutil.ToFloat64(StageItemsTotal.WithLabelValues("translate", "processed")))
}

func TestRecordCrawl(t *testing.T) {
	before := testutil.ToFloat64(CrawlsTotal.WithLabelValues("completed"))
	inserted := testutil.ToFloat64(CrawlArticlesTotal.WithLabelValues("inserted"))
	RecordCrawl("completed", 5, 2, 0, time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(CrawlsTotal.WithLabelValues("completed")))
	assert.Equal(t, inserted+5, testutil.ToFloat64(CrawlArticlesTotal.WithLabelValues("inserted")))
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("/api/search", "200"))
	RecordRequest("/api/search", "200", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("/api/search", "200")))
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordOutcome("success")
	m.RecordOutcome("success")
	m.RecordOutcome("failed-store")
	m.RecordChunks(4, 1)
	m.RecordEmbed("ingest", nil)
	m.RecordEmbed("ingest", errors.New("boom"))
	m.RecordEmbedRetry()
	m.RecordSearch("success", 3, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestOutcomesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestOutcomesTotal.WithLabelValues("failed-store")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChunksWrittenTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleChunksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbedRequestsTotal.WithLabelValues("ingest", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbedRetriesTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SearchResultsTotal))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOutcome("success")
		m.RecordChunks(1, 1)
		m.RecordEmbed("search", nil)
		m.RecordEmbedRetry()
		m.RecordSearch("error", 0, time.Second)
	})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordOutcome("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `druginfo_ingest_records_total{outcome="success"} 1`))
}

package handlers

import (
	"context"
	"net/http"

	"druginfo-rag/internal/indexer"
)

// StatsProvider computes ingestion coverage statistics.
type StatsProvider interface {
	CoverageStats(ctx context.Context) (*indexer.IndexingCoverageStats, error)
}

// StatsHandler handles GET /api/stats.
type StatsHandler struct {
	stats StatsProvider
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats StatsProvider) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// ServeHTTP writes the coverage statistics.
//
// swagger:route GET /api/stats stats
//
// responses:
//
//	'200': IndexingCoverageStats
//	'503': ErrorResponse
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.stats.CoverageStats(ctx)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, stats)
}

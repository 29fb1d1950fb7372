package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"druginfo-rag/internal/contextutil"
	"druginfo-rag/internal/indexer"
	"druginfo-rag/internal/record"
)

// maxIngestBody bounds the size of an ingest request.
const maxIngestBody = 32 << 20

// Ingester writes raw records into the stores.
type Ingester interface {
	Ingest(ctx context.Context, raws []record.RawRecord, opts indexer.Options) (*indexer.Report, error)
}

// IngestHandler handles synchronous ingest requests.
type IngestHandler struct {
	ingester Ingester
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingester Ingester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

// IngestRequest carries raw records in any layout the source loader accepts.
//
// swagger:model IngestRequest
type IngestRequest struct {
	Records json.RawMessage `json:"records"`
	// Alias is applied to records that were not grouped under one.
	Alias string `json:"alias,omitempty"`
	// EmbeddingModel, when set, must match the configured model.
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// IngestResponse summarizes an ingest run.
//
// swagger:model IngestResponse
type IngestResponse struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Cancelled int               `json:"cancelled"`
	Outcomes  []indexer.Outcome `json:"outcomes"`
}

func newIngestResponse(report *indexer.Report) IngestResponse {
	return IngestResponse{
		Total:     len(report.Outcomes),
		Succeeded: report.Count(indexer.StatusSuccess),
		Skipped:   report.Count(indexer.StatusSkippedMalformed),
		Failed:    report.Count(indexer.StatusFailedEmbedding) + report.Count(indexer.StatusFailedStore),
		Cancelled: report.Count(indexer.StatusCancelled),
		Outcomes:  report.Outcomes,
	}
}

// ServeHTTP handles POST /api/ingest. The vector collection is never recreated here.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)
	var req IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "Records are required")
		return
	}

	raws, err := record.Load(bytes.NewReader(req.Records))
	if err != nil {
		logger.WarnContext(ctx, "invalid records", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid records: "+err.Error())
		return
	}
	if req.Alias != "" {
		for i := range raws {
			if raws[i].Alias == "" {
				raws[i].Alias = req.Alias
			}
		}
	}

	report, err := h.ingester.Ingest(ctx, raws, indexer.Options{EmbeddingModel: req.EmbeddingModel})
	switch {
	case errors.Is(err, indexer.ErrModelMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil && report == nil:
		handleServiceError(ctx, w, err)
		return
	case err != nil:
		logger.WarnContext(ctx, "ingest interrupted", "error", err)
	}

	logger.InfoContext(ctx, "ingest request completed", "records", len(raws))
	writeJSON(ctx, w, http.StatusOK, newIngestResponse(report))
}

package handlers

import (
	"net/http"
	"strings"

	"druginfo-rag/internal/contextutil"
	"druginfo-rag/internal/rag"
)

// AskHandler handles HTTP requests for RAG questions.
type AskHandler struct {
	ragEngine rag.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(ragEngine rag.Engine) *AskHandler {
	return &AskHandler{ragEngine: ragEngine}
}

// AskRequest represents the HTTP request payload for RAG queries.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string `json:"question"`
	Filters
}

// AskResponse represents the HTTP response payload for RAG queries.
//
// swagger:model AskResponse
type AskResponse struct {
	// The generated answer
	Answer string `json:"answer"`

	// Passages the answer was generated from
	References []rag.Reference `json:"references"`

	NoMatchingProducts bool `json:"no_matching_products,omitempty"`
}

// ServeHTTP handles POST /api/ask.
//
// swagger:route POST /api/ask askQuestion
//
// # Ask a question using RAG
//
// Retrieves label passages with the same filters as search and answers from them.
//
// responses:
//
//	'200': AskResponse
//	'400': ErrorResponse
//	'502': ErrorResponse
//	'503': ErrorResponse
//	'504': ErrorResponse
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req AskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	ragResp, err := h.ragEngine.Ask(ctx, rag.AskRequest{
		Question:    req.Question,
		Section:     req.Section,
		Alias:       req.Alias,
		Ingredients: req.ingredients(),
		K:           req.k(),
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	refs := ragResp.References
	if refs == nil {
		refs = []rag.Reference{}
	}
	writeJSON(ctx, w, http.StatusOK, AskResponse{
		Answer:             ragResp.Answer,
		References:         refs,
		NoMatchingProducts: ragResp.NoMatchingProducts,
	})
}

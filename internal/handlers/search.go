package handlers

import (
	"net/http"
	"strings"

	"druginfo-rag/internal/rag"
)

// SearchHandler handles HTTP requests for hybrid retrieval.
type SearchHandler struct {
	searcher rag.Searcher
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searcher rag.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Filters are the retrieval filters shared by search and ask requests.
type Filters struct {
	Section string `json:"section,omitempty"`
	Alias   string `json:"alias,omitempty"`
	// Ingredients must all be present in a matching product.
	Ingredients []string `json:"ingredients,omitempty"`
	// Ingredient is a single-ingredient shorthand, merged into Ingredients.
	Ingredient string `json:"ingredient,omitempty"`
	// K is the number of passages; zero selects the default of 8.
	K int `json:"k,omitempty"`
}

func (f Filters) ingredients() []string {
	out := f.Ingredients
	if s := strings.TrimSpace(f.Ingredient); s != "" {
		out = append(append([]string(nil), out...), s)
	}
	return out
}

func (f Filters) k() int {
	if f.K == 0 {
		return rag.DefaultK
	}
	return f.K
}

// SearchRequest represents the HTTP request payload for search.
//
// swagger:model SearchRequest
type SearchRequest struct {
	Query string `json:"query"`
	Filters
}

// SearchResponse represents the HTTP response payload for search.
//
// swagger:model SearchResponse
type SearchResponse struct {
	Results            []rag.Passage `json:"results"`
	Total              int           `json:"total"`
	NoMatchingProducts bool          `json:"no_matching_products"`
}

// ServeHTTP handles POST /api/search.
//
// swagger:route POST /api/search search
//
// Returns section passages matching the filters, ordered by similarity.
//
// responses:
//
//	'200': SearchResponse
//	'400': ErrorResponse
//	'502': ErrorResponse
//	'503': ErrorResponse
//	'504': ErrorResponse
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.searcher.Search(ctx, rag.Query{
		Text:        req.Query,
		Section:     req.Section,
		Alias:       req.Alias,
		Ingredients: req.ingredients(),
		K:           req.k(),
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	results := res.Passages
	if results == nil {
		results = []rag.Passage{}
	}
	writeJSON(ctx, w, http.StatusOK, SearchResponse{
		Results:            results,
		Total:              len(results),
		NoMatchingProducts: res.NoMatchingProducts,
	})
}

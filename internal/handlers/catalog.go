package handlers

import (
	"context"
	"net/http"

	"druginfo-rag/internal/record"
	"druginfo-rag/internal/service"
)

// CatalogLister lists filter values known to the metadata store.
type CatalogLister interface {
	ListAliases(ctx context.Context) ([]string, error)
	ListIngredients(ctx context.Context) ([]string, error)
}

// CatalogHandler serves the filter value listings.
type CatalogHandler struct {
	catalog CatalogLister
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog CatalogLister) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListResponse is a sorted list of filter values.
//
// swagger:model ListResponse
type ListResponse struct {
	Items []string `json:"items"`
}

// Sections handles GET /api/sections.
func (h *CatalogHandler) Sections(w http.ResponseWriter, r *http.Request) {
	kinds := record.AllSections()
	items := make([]string, len(kinds))
	for i, k := range kinds {
		items[i] = k.String()
	}
	writeJSON(r.Context(), w, http.StatusOK, ListResponse{Items: items})
}

// Aliases handles GET /api/aliases.
func (h *CatalogHandler) Aliases(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.catalog.ListAliases)
}

// Ingredients handles GET /api/ingredients.
func (h *CatalogHandler) Ingredients(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.catalog.ListIngredients)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context) ([]string, error)) {
	ctx := r.Context()
	items, err := fn(ctx)
	if err != nil {
		handleServiceError(ctx, w, service.Kind(service.ErrStoreUnavailable, err))
		return
	}
	if items == nil {
		items = []string{}
	}
	writeJSON(ctx, w, http.StatusOK, ListResponse{Items: items})
}

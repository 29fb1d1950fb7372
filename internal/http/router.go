package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"druginfo-rag/internal/handlers"
	"druginfo-rag/internal/rag"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Searcher   rag.Searcher
	RAGEngine  rag.Engine
	Catalog    handlers.CatalogLister
	Ingester   handlers.Ingester
	Stats      handlers.StatsProvider
	DB         handlers.Pinger
	Vectors    handlers.CollectionChecker
	Collection string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// APIKey, when set, is required in X-API-Key on every /api route except health.
	APIKey string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	catalog := handlers.NewCatalogHandler(deps.Catalog)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.DB, deps.Vectors, deps.Collection))

		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(deps.APIKey))
			r.Method(http.MethodPost, "/search", handlers.NewSearchHandler(deps.Searcher))
			r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.RAGEngine))
			r.Method(http.MethodPost, "/ingest", handlers.NewIngestHandler(deps.Ingester))
			r.Method(http.MethodGet, "/stats", handlers.NewStatsHandler(deps.Stats))
			r.Get("/sections", catalog.Sections)
			r.Get("/aliases", catalog.Aliases)
			r.Get("/ingredients", catalog.Ingredients)
		})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

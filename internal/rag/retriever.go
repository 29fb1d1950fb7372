package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_searcher.go -package=mocks druginfo-rag/internal/rag Searcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"druginfo-rag/internal/contextutil"
	"druginfo-rag/internal/llm"
	"druginfo-rag/internal/metrics"
	"druginfo-rag/internal/record"
	"druginfo-rag/internal/service"
	"druginfo-rag/internal/storage"
	"druginfo-rag/internal/vectorstore"
)

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// RetrieverConfig holds the fixed settings of a Retriever.
type RetrieverConfig struct {
	Collection string
	AliasMode  storage.AliasMode
	// Timeout bounds each search. Zero selects DefaultTimeout.
	Timeout time.Duration
	// MaxK caps Query.K. Zero selects MaxK.
	MaxK    int
	Metrics *metrics.Metrics
}

// Retriever combines relational filters from the metadata store with vector similarity search.
type Retriever struct {
	catalog  storage.CatalogStore
	embedder llm.Embedder
	vectors  vectorstore.VectorStore
	cfg      RetrieverConfig
}

// NewRetriever creates a new Retriever.
func NewRetriever(catalog storage.CatalogStore, embedder llm.Embedder, vectors vectorstore.VectorStore, cfg RetrieverConfig) *Retriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = MaxK
	}
	if cfg.AliasMode == "" {
		cfg.AliasMode = storage.AliasSubstring
	}
	return &Retriever{catalog: catalog, embedder: embedder, vectors: vectors, cfg: cfg}
}

// filters is a validated query.
type filters struct {
	text        string
	section     record.SectionKind
	alias       string
	ingredients []string
	k           int
}

func (r *Retriever) validate(q Query) (filters, error) {
	f := filters{text: strings.TrimSpace(q.Text), alias: strings.TrimSpace(q.Alias), k: q.K}
	if f.text == "" {
		return f, service.InvalidFilter("query", "cannot be empty")
	}
	if q.K < 1 || q.K > r.cfg.MaxK {
		return f, service.InvalidFilter("k", fmt.Sprintf("must be between 1 and %d", r.cfg.MaxK))
	}
	section, err := record.ParseSection(q.Section)
	if err != nil {
		return f, err
	}
	f.section = section
	for _, ing := range q.Ingredients {
		key := vectorstore.IngredientKey(ing)
		if key != "" && !slices.Contains(f.ingredients, key) {
			f.ingredients = append(f.ingredients, key)
		}
	}
	return f, nil
}

// Search returns at most q.K passages matching every supplied filter. The request is
// validated before any network call. An alias matching no product yields an empty result
// with NoMatchingProducts set, without querying the vector index.
func (r *Retriever) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	res, err := r.search(ctx, q)

	status := "success"
	n := 0
	switch {
	case err != nil:
		status = "error"
	case res.NoMatchingProducts:
		status = "no_matching_products"
	default:
		n = len(res.Passages)
	}
	r.cfg.Metrics.RecordSearch(status, n, time.Since(start))
	return res, err
}

func (r *Retriever) search(ctx context.Context, q Query) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	f, err := r.validate(q)
	if err != nil {
		logger.WarnContext(ctx, "rejected search", "error", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	vf := &vectorstore.Filter{Section: f.section.String(), IngredientKeys: f.ingredients}
	if f.alias != "" {
		ids, err := r.catalog.ResolveAliases(ctx, f.alias, r.cfg.AliasMode)
		if err != nil {
			return nil, r.fail(ctx, service.ErrStoreUnavailable, fmt.Errorf("failed to resolve alias: %w", err))
		}
		if len(ids) == 0 {
			logger.InfoContext(ctx, "alias matched no product", "alias", f.alias)
			return &Result{Passages: []Passage{}, NoMatchingProducts: true}, nil
		}
		vf.ItemSeqs = ids
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{f.text})
	r.cfg.Metrics.RecordEmbed("search", err)
	if err != nil {
		return nil, r.fail(ctx, service.ErrEmbeddingService, fmt.Errorf("failed to embed query: %w", err))
	}
	if len(vecs) != 1 {
		return nil, r.fail(ctx, service.ErrEmbeddingService, fmt.Errorf("expected 1 query embedding, got %d", len(vecs)))
	}

	hits, err := r.vectors.Search(ctx, r.cfg.Collection, vecs[0], f.k+CandidateMargin, vf)
	if err != nil {
		return nil, r.fail(ctx, service.ErrStoreUnavailable, fmt.Errorf("failed to search vector store: %w", err))
	}

	// Every hit must satisfy the filter regardless of what the index applied.
	verified := make([]vectorstore.Payload, 0, len(hits))
	scores := make([]float32, 0, len(hits))
	var ids []string
	for _, hit := range hits {
		if !vf.Matches(hit.Meta) {
			logger.WarnContext(ctx, "dropping hit outside filter", "point_id", hit.PointID)
			continue
		}
		p := vectorstore.ParsePayload(hit.Meta)
		verified = append(verified, p)
		scores = append(scores, hit.Score)
		if !slices.Contains(ids, p.ItemSeq) {
			ids = append(ids, p.ItemSeq)
		}
	}

	products, err := r.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, r.fail(ctx, service.ErrStoreUnavailable, fmt.Errorf("failed to load products: %w", err))
	}

	passages := make([]Passage, 0, len(verified))
	for i, p := range verified {
		info, ok := products[p.ItemSeq]
		if !ok {
			logger.DebugContext(ctx, "dropping hit for deleted product", "item_seq", p.ItemSeq)
			continue
		}
		passages = append(passages, Passage{
			ItemSeq:     p.ItemSeq,
			Section:     p.Section,
			PartIdx:     p.PartIdx,
			Text:        p.Text,
			Score:       scores[i],
			ItemName:    info.ItemName,
			EntpName:    info.EntpName,
			ItemImage:   info.ItemImage,
			IsOTC:       info.IsOTC,
			UpdateDe:    info.UpdateDe,
			Aliases:     info.Aliases,
			Ingredients: info.Ingredients,
		})
	}

	slices.SortStableFunc(passages, comparePassages)
	if len(passages) > f.k {
		passages = passages[:f.k]
	}

	logger.InfoContext(ctx, "search completed", "k", f.k, "section", f.section, "results", len(passages), "hits", len(hits))
	return &Result{Passages: passages}, nil
}

// fail classifies err, reporting a deadline as ErrTimeout.
func (r *Retriever) fail(ctx context.Context, kind, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		kind = service.ErrTimeout
	}
	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "search failed", "error", err)
	return service.Kind(kind, err)
}

func comparePassages(a, b Passage) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	return storage.CompareKeys(
		storage.SectionKey{ItemSeq: a.ItemSeq, Section: a.Section, PartIdx: a.PartIdx},
		storage.SectionKey{ItemSeq: b.ItemSeq, Section: b.Section, PartIdx: b.PartIdx},
	)
}

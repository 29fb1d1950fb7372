package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"druginfo-rag/internal/contextutil"
	"druginfo-rag/internal/llm"
	"druginfo-rag/internal/metrics"
	"druginfo-rag/internal/record"
	"druginfo-rag/internal/service"
	"druginfo-rag/internal/storage"
	"druginfo-rag/internal/vectorstore"
)

const (
	// DefaultBatchSize is the number of chunk texts sent per embedding call.
	DefaultBatchSize = 32
	// DefaultWorkers is the number of products processed concurrently.
	DefaultWorkers = 4
)

// ErrModelMismatch is returned when an ingest names an embedding model other than the configured one.
var ErrModelMismatch = errors.New("embedding model mismatch")

// Config holds the fixed settings of a Pipeline.
type Config struct {
	Collection     string
	VectorSize     int
	EmbeddingModel string
	BatchSize      int
	Workers        int
	ChunkBudget    int
	Overlap        int
	Metrics        *metrics.Metrics
}

// Pipeline writes products into the metadata store and the vector index.
// The relational commit for a product always precedes its vector writes.
type Pipeline struct {
	products storage.ProductStore
	sections storage.SectionStore
	catalog  storage.CatalogStore
	embedder llm.Embedder
	vectors  vectorstore.VectorStore
	cfg      Config
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	products storage.ProductStore,
	sections storage.SectionStore,
	catalog storage.CatalogStore,
	embedder llm.Embedder,
	vectors vectorstore.VectorStore,
	cfg Config,
) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ChunkBudget <= 0 {
		cfg.ChunkBudget = DefaultChunkBudget
	}
	return &Pipeline{
		products: products,
		sections: sections,
		catalog:  catalog,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg,
	}
}

// job is one product to write, together with the input positions it came from.
type job struct {
	product *record.Canonical
	indices []int
}

// Ingest normalizes, chunks, embeds and stores raw records. Every record gets an outcome.
// Malformed records and per-product failures are reported, not returned. The returned error
// is non-nil only when the run could not start or ctx was cancelled; in the latter case
// the report is still complete, with unstarted records marked cancelled.
func (p *Pipeline) Ingest(ctx context.Context, raws []record.RawRecord, opts Options) (*Report, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if opts.EmbeddingModel != "" && opts.EmbeddingModel != p.cfg.EmbeddingModel {
		return nil, fmt.Errorf("%w: requested %q, configured %q", ErrModelMismatch, opts.EmbeddingModel, p.cfg.EmbeddingModel)
	}

	budget := opts.ChunkBudget
	overlap := opts.Overlap
	if budget <= 0 {
		budget, overlap = p.cfg.ChunkBudget, p.cfg.Overlap
	}
	chunker := NewChunker(budget, overlap)

	report := &Report{Outcomes: make([]Outcome, len(raws))}
	jobs := p.plan(ctx, raws, report)

	if err := ctx.Err(); err != nil {
		for _, j := range jobs {
			p.finish(report, j, 0, StatusCancelled, err)
		}
		p.logSummary(ctx, "ingest cancelled before start", report)
		return report, err
	}

	if err := p.prepareCollection(ctx, opts.RecreateIndex); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = p.cfg.Workers
	}

	logger.InfoContext(ctx, "starting ingest", "records", len(raws), "products", len(jobs), "workers", workers, "chunk_budget", chunker.Budget())

	p.run(ctx, jobs, workers, report, func(ctx context.Context, j *job) (int, Status, error) {
		return p.writeProduct(ctx, chunker, j.product)
	})

	p.logSummary(ctx, "ingest completed", report)
	return report, ctx.Err()
}

// prepareCollection recreates or ensures the vector collection before any point is written.
func (p *Pipeline) prepareCollection(ctx context.Context, recreate bool) error {
	if recreate {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "recreating vector collection", "collection", p.cfg.Collection)
		if err := p.vectors.RecreateCollection(ctx, p.cfg.Collection, p.cfg.VectorSize); err != nil {
			return service.Kind(service.ErrStoreUnavailable, fmt.Errorf("failed to recreate collection: %w", err))
		}
		return nil
	}
	if err := p.vectors.EnsureCollection(ctx, p.cfg.Collection, p.cfg.VectorSize); err != nil {
		return service.Kind(service.ErrStoreUnavailable, fmt.Errorf("failed to ensure collection: %w", err))
	}
	return nil
}

// plan normalizes every raw record and merges records sharing an item_seq into one job,
// in order of first appearance. Malformed records get their outcome immediately.
func (p *Pipeline) plan(ctx context.Context, raws []record.RawRecord, report *Report) []*job {
	logger := contextutil.LoggerFromContext(ctx)

	var jobs []*job
	byID := make(map[string]*job)
	for i, raw := range raws {
		report.Outcomes[i] = Outcome{Index: i}

		c, err := record.Normalize(raw)
		if err != nil {
			logger.WarnContext(ctx, "skipping malformed record", "index", i, "alias", raw.Alias, "error", err)
			report.Outcomes[i].Status = StatusSkippedMalformed
			report.Outcomes[i].Err = err
			report.Outcomes[i].Error = err.Error()
			p.cfg.Metrics.RecordOutcome(string(StatusSkippedMalformed))
			continue
		}

		report.Outcomes[i].ItemSeq = c.Product.ItemSeq
		if j, ok := byID[c.Product.ItemSeq]; ok {
			logger.DebugContext(ctx, "merging duplicate record", "item_seq", c.Product.ItemSeq, "index", i)
			j.product = j.product.Merge(c)
			j.indices = append(j.indices, i)
			continue
		}
		j := &job{product: c, indices: []int{i}}
		byID[c.Product.ItemSeq] = j
		jobs = append(jobs, j)
	}
	return jobs
}

// run executes fn for each job on a bounded pool. Once ctx is done no new job starts;
// jobs already started finish on a context detached from cancellation.
func (p *Pipeline) run(ctx context.Context, jobs []*job, workers int, report *Report, fn func(context.Context, *job) (int, Status, error)) {
	var g errgroup.Group
	g.SetLimit(workers)

	for _, j := range jobs {
		if ctx.Err() != nil {
			p.finish(report, j, 0, StatusCancelled, ctx.Err())
			continue
		}
		g.Go(func() error {
			// The slot may have opened only after cancellation.
			if ctx.Err() != nil {
				p.finish(report, j, 0, StatusCancelled, ctx.Err())
				return nil
			}
			chunks, status, err := fn(context.WithoutCancel(ctx), j)
			p.finish(report, j, chunks, status, err)
			return nil
		})
	}
	_ = g.Wait()
}

// finish records one job's result on every input record it came from.
func (p *Pipeline) finish(report *Report, j *job, chunks int, status Status, err error) {
	for _, idx := range j.indices {
		o := &report.Outcomes[idx]
		o.Status = status
		o.Chunks = chunks
		o.Err = err
		if err != nil {
			o.Error = err.Error()
		}
		p.cfg.Metrics.RecordOutcome(string(status))
	}
}

// writeProduct chunks and embeds one product, commits it to the metadata store and then
// writes its points, removing any other point of the product.
func (p *Pipeline) writeProduct(ctx context.Context, chunker *Chunker, c *record.Canonical) (int, Status, error) {
	logger := contextutil.LoggerFromContext(ctx).With("item_seq", c.Product.ItemSeq)

	var chunks []SectionChunk
	for _, kind := range c.SectionKinds() {
		for ch := range chunker.Chunks(c.Sections[kind]) {
			chunks = append(chunks, SectionChunk{ItemSeq: c.Product.ItemSeq, Section: kind, PartIdx: ch.Index, Text: ch.Text})
		}
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed product", "chunks", len(chunks), "error", err)
		return 0, StatusFailedEmbedding, err
	}

	rows := make([]storage.SectionRecord, len(chunks))
	for i, ch := range chunks {
		rows[i] = storage.SectionRecord{ItemSeq: ch.ItemSeq, Section: ch.Section.String(), PartIdx: ch.PartIdx, Text: ch.Text}
	}

	saved, err := p.products.SaveProduct(ctx, productRecord(c.Product), rows, c.Aliases, c.Ingredients)
	if err != nil {
		logger.ErrorContext(ctx, "failed to save product", "error", err)
		return 0, StatusFailedStore, service.Kind(service.ErrStoreUnavailable, err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, ch := range chunks {
		payload := vectorstore.Payload{
			ItemSeq:        ch.ItemSeq,
			Section:        ch.Section.String(),
			PartIdx:        ch.PartIdx,
			Text:           ch.Text,
			ItemName:       c.Product.ItemName,
			EntpName:       c.Product.EntpName,
			Aliases:        saved.Aliases,
			Ingredients:    c.Ingredients,
			IsOTC:          c.Product.IsOTC,
			UpdateDe:       c.Product.UpdateDe,
			EmbeddingModel: p.cfg.EmbeddingModel,
		}
		points[i] = vectorstore.Point{
			ID:   vectorstore.PointID(ch.ItemSeq, ch.Section.String(), ch.PartIdx),
			Vec:  vectors[i],
			Meta: payload.Map(),
		}
	}

	if err := p.writePoints(ctx, c.Product.ItemSeq, points); err != nil {
		logger.ErrorContext(ctx, "failed to write vectors", "error", err)
		return 0, StatusFailedStore, err
	}

	p.cfg.Metrics.RecordChunks(len(chunks), len(saved.StaleKeys))
	logger.InfoContext(ctx, "indexed product", "chunks", len(chunks), "stale", len(saved.StaleKeys))
	return len(chunks), StatusSuccess, nil
}

// writePoints upserts a product's points, then deletes every other point the index holds
// for that product. Pruning by item_seq rather than by the relational diff also removes
// points left behind by an earlier run whose delete failed.
func (p *Pipeline) writePoints(ctx context.Context, itemSeq string, points []vectorstore.Point) error {
	if len(points) > 0 {
		if err := p.vectors.Upsert(ctx, p.cfg.Collection, points); err != nil {
			return service.Kind(service.ErrStoreUnavailable, fmt.Errorf("failed to upsert vectors: %w", err))
		}
	}
	keep := make([]string, len(points))
	for i, pt := range points {
		keep[i] = pt.ID
	}
	if err := p.vectors.DeleteProductExcept(ctx, p.cfg.Collection, itemSeq, keep); err != nil {
		return service.Kind(service.ErrStoreUnavailable, fmt.Errorf("failed to delete stale vectors: %w", err))
	}
	return nil
}

// embedChunks embeds chunk texts in batches. A failing batch is retried one text at a time
// so a single bad input does not sink its neighbours.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []SectionChunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}

		vecs, err := p.embed(ctx, texts)
		if err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "embedding batch failed, falling back to single texts", "batch", len(texts), "error", err)
			vecs = make([][]float32, 0, len(texts))
			for _, text := range texts {
				v, err := p.embed(ctx, []string{text})
				if err != nil {
					return nil, service.Kind(service.ErrEmbeddingService, err)
				}
				vecs = append(vecs, v[0])
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vecs))
	}
	p.cfg.Metrics.RecordEmbed("ingest", err)
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// Reconcile re-derives the vector points of the given products from the metadata store,
// upserts them and removes any other point of those products. An empty list reconciles
// every stored product.
func (p *Pipeline) Reconcile(ctx context.Context, itemSeqs []string) (*Report, error) {
	if len(itemSeqs) == 0 {
		all, err := p.products.ListItemSeqs(ctx)
		if err != nil {
			return nil, service.Kind(service.ErrStoreUnavailable, err)
		}
		itemSeqs = all
	}

	if err := p.prepareCollection(ctx, false); err != nil {
		return nil, err
	}

	report := &Report{Outcomes: make([]Outcome, len(itemSeqs))}
	jobs := make([]*job, len(itemSeqs))
	for i, id := range itemSeqs {
		report.Outcomes[i] = Outcome{Index: i, ItemSeq: id}
		jobs[i] = &job{product: &record.Canonical{Product: record.Product{ItemSeq: id}}, indices: []int{i}}
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "starting reconcile", "products", len(itemSeqs))
	p.run(ctx, jobs, p.cfg.Workers, report, func(ctx context.Context, j *job) (int, Status, error) {
		return p.reconcileProduct(ctx, j.product.Product.ItemSeq)
	})

	p.logSummary(ctx, "reconcile completed", report)
	return report, ctx.Err()
}

func (p *Pipeline) reconcileProduct(ctx context.Context, itemSeq string) (int, Status, error) {
	product, err := p.products.Get(ctx, itemSeq)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, StatusFailedStore, fmt.Errorf("product %s: %w", itemSeq, err)
		}
		return 0, StatusFailedStore, service.Kind(service.ErrStoreUnavailable, err)
	}
	rows, err := p.sections.ListByProduct(ctx, itemSeq)
	if err != nil {
		return 0, StatusFailedStore, service.Kind(service.ErrStoreUnavailable, err)
	}
	infos, err := p.catalog.GetProducts(ctx, []string{itemSeq})
	if err != nil {
		return 0, StatusFailedStore, service.Kind(service.ErrStoreUnavailable, err)
	}
	info := infos[itemSeq]
	if info == nil {
		info = &storage.ProductInfo{}
	}

	chunks := make([]SectionChunk, len(rows))
	for i, r := range rows {
		chunks[i] = SectionChunk{ItemSeq: r.ItemSeq, Section: record.SectionKind(r.Section), PartIdx: r.PartIdx, Text: r.Text}
	}
	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return 0, StatusFailedEmbedding, err
	}

	points := make([]vectorstore.Point, len(rows))
	for i, r := range rows {
		payload := vectorstore.Payload{
			ItemSeq:        r.ItemSeq,
			Section:        r.Section,
			PartIdx:        r.PartIdx,
			Text:           r.Text,
			ItemName:       product.ItemName,
			EntpName:       product.EntpName,
			Aliases:        info.Aliases,
			Ingredients:    info.Ingredients,
			IsOTC:          product.IsOTC,
			UpdateDe:       product.UpdateDe,
			EmbeddingModel: p.cfg.EmbeddingModel,
		}
		points[i] = vectorstore.Point{ID: vectorstore.PointID(r.ItemSeq, r.Section, r.PartIdx), Vec: vectors[i], Meta: payload.Map()}
	}
	if err := p.writePoints(ctx, itemSeq, points); err != nil {
		return 0, StatusFailedStore, err
	}
	return len(points), StatusSuccess, nil
}

func (p *Pipeline) logSummary(ctx context.Context, msg string, report *Report) {
	level := slog.LevelInfo
	if report.Count(StatusFailedEmbedding)+report.Count(StatusFailedStore) > 0 {
		level = slog.LevelWarn
	}
	contextutil.LoggerFromContext(ctx).Log(ctx, level, msg,
		"records", len(report.Outcomes),
		"success", report.Count(StatusSuccess),
		"skipped_malformed", report.Count(StatusSkippedMalformed),
		"failed_embedding", report.Count(StatusFailedEmbedding),
		"failed_store", report.Count(StatusFailedStore),
		"cancelled", report.Count(StatusCancelled),
	)
}

func productRecord(p record.Product) *storage.ProductRecord {
	return &storage.ProductRecord{
		ItemSeq:   p.ItemSeq,
		EntpName:  p.EntpName,
		ItemName:  p.ItemName,
		ItemImage: p.ItemImage,
		Bizrno:    p.Bizrno,
		OpenDe:    p.OpenDe,
		UpdateDe:  p.UpdateDe,
		IsOTC:     p.IsOTC,
		RawJSON:   p.RawJSON,
	}
}

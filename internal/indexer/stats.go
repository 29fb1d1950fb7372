package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"

	"druginfo-rag/internal/record"
	"druginfo-rag/internal/service"
)

// IndexingCoverageStats contains statistics about the indexed corpus.
type IndexingCoverageStats struct {
	// ProductsIndexed is the number of products in the metadata store.
	ProductsIndexed int `json:"products_indexed"`
	// ProductsWith0Chunks is the number of products whose label has no section text.
	ProductsWith0Chunks int `json:"products_with_0_chunks"`
	// Chunks is the total number of stored section chunks.
	Chunks int `json:"chunks"`
	// ChunksPerSection breaks Chunks down by section kind. Every kind is present.
	ChunksPerSection map[string]int `json:"chunks_per_section"`
	// ChunkLengthStats describes chunk sizes in characters.
	ChunkLengthStats ChunkLengthStats `json:"chunk_length_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// EmbeddingModel is the configured embedding model.
	EmbeddingModel string `json:"embedding_model"`
	// IndexVersion identifies the index build (chunker, embedding model, chunking params).
	IndexVersion string `json:"index_version"`
}

// ChunkLengthStats contains statistics about chunk lengths.
type ChunkLengthStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// CoverageStats computes coverage statistics from the metadata store.
func (p *Pipeline) CoverageStats(ctx context.Context) (*IndexingCoverageStats, error) {
	products, err := p.catalog.CountProducts(ctx)
	if err != nil {
		return nil, service.Kind(service.ErrStoreUnavailable, err)
	}
	empty, err := p.catalog.CountProductsWithoutSections(ctx)
	if err != nil {
		return nil, service.Kind(service.ErrStoreUnavailable, err)
	}
	lengths, err := p.catalog.ChunkLengths(ctx)
	if err != nil {
		return nil, service.Kind(service.ErrStoreUnavailable, err)
	}

	stats := &IndexingCoverageStats{
		ProductsIndexed:     products,
		ProductsWith0Chunks: empty,
		Chunks:              len(lengths),
		ChunksPerSection:    make(map[string]int),
		ChunkerVersion:      ChunkerVersion,
		EmbeddingModel:      p.cfg.EmbeddingModel,
		IndexVersion:        IndexVersion(p.cfg.EmbeddingModel, p.cfg.ChunkBudget, p.cfg.Overlap),
	}
	for _, kind := range record.AllSections() {
		stats.ChunksPerSection[kind.String()] = 0
	}

	values := make([]int, len(lengths))
	for i, cl := range lengths {
		stats.ChunksPerSection[cl.Section]++
		values[i] = cl.Length
	}
	stats.ChunkLengthStats = computeLengthStats(values)

	return stats, nil
}

// IndexVersion returns a short hash identifying an index build.
func IndexVersion(embeddingModel string, budget, overlap int) string {
	input := fmt.Sprintf("%s|%s|budget=%d|overlap=%d", ChunkerVersion, embeddingModel, budget, overlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeLengthStats computes min, max, mean, and p95.
func computeLengthStats(values []int) ChunkLengthStats {
	if len(values) == 0 {
		return ChunkLengthStats{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}
	mean := float64(sum) / float64(len(sorted))

	// Nearest-rank percentile.
	rank := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	rank = max(0, min(rank, len(sorted)-1))

	return ChunkLengthStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[rank],
	}
}

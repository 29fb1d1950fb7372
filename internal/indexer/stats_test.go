package indexer

import (
	"context"
	"strings"
	"testing"

	"druginfo-rag/internal/record"
)

func TestCoverageStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stats, err := f.pipeline.CoverageStats(ctx)
	if err != nil {
		t.Fatalf("CoverageStats() error = %v", err)
	}
	if stats.ProductsIndexed != 0 || stats.Chunks != 0 {
		t.Errorf("empty store stats = %+v", stats)
	}
	if stats.ChunkerVersion != ChunkerVersion {
		t.Errorf("ChunkerVersion = %s, want %s", stats.ChunkerVersion, ChunkerVersion)
	}
	if stats.IndexVersion == "" {
		t.Error("IndexVersion should not be empty")
	}
	if len(stats.ChunksPerSection) != len(record.AllSections()) {
		t.Errorf("ChunksPerSection has %d kinds, want %d", len(stats.ChunksPerSection), len(record.AllSections()))
	}

	_, err = f.pipeline.Ingest(ctx, []record.RawRecord{
		raw(t, "", map[string]any{"itemSeq": "1", "efcyQesitm": strings.Repeat("가", 2500), "seQesitm": "두통"}),
		raw(t, "", map[string]any{"itemSeq": "2", "efcyQesitm": "해열"}),
		raw(t, "", map[string]any{"itemSeq": "3", "itemName": "설명 없는 약"}),
	}, Options{})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	stats, err = f.pipeline.CoverageStats(ctx)
	if err != nil {
		t.Fatalf("CoverageStats() error = %v", err)
	}
	if stats.ProductsIndexed != 3 {
		t.Errorf("ProductsIndexed = %d, want 3", stats.ProductsIndexed)
	}
	if stats.ProductsWith0Chunks != 1 {
		t.Errorf("ProductsWith0Chunks = %d, want 1", stats.ProductsWith0Chunks)
	}
	if stats.Chunks != 5 {
		t.Errorf("Chunks = %d, want 5", stats.Chunks)
	}
	if got := stats.ChunksPerSection["efficacy"]; got != 4 {
		t.Errorf("ChunksPerSection[efficacy] = %d, want 4", got)
	}
	if got := stats.ChunksPerSection["side_effects"]; got != 1 {
		t.Errorf("ChunksPerSection[side_effects] = %d, want 1", got)
	}
	if stats.ChunkLengthStats.Min != 2 || stats.ChunkLengthStats.Max != 1000 {
		t.Errorf("ChunkLengthStats = %+v, want min 2 max 1000", stats.ChunkLengthStats)
	}
	if stats.EmbeddingModel != testModel {
		t.Errorf("EmbeddingModel = %s, want %s", stats.EmbeddingModel, testModel)
	}
}

func TestIndexVersion(t *testing.T) {
	a := IndexVersion("model-a", 1000, 0)
	if len(a) != 16 {
		t.Errorf("IndexVersion length = %d, want 16", len(a))
	}
	if a != IndexVersion("model-a", 1000, 0) {
		t.Error("IndexVersion is not stable")
	}
	if a == IndexVersion("model-b", 1000, 0) || a == IndexVersion("model-a", 800, 0) || a == IndexVersion("model-a", 1000, 100) {
		t.Error("IndexVersion should change with model and chunking parameters")
	}
}

func TestComputeLengthStats(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		want   ChunkLengthStats
	}{
		{
			name:   "empty",
			values: []int{},
			want:   ChunkLengthStats{},
		},
		{
			name:   "single value",
			values: []int{100},
			want:   ChunkLengthStats{Min: 100, Max: 100, Mean: 100, P95: 100},
		},
		{
			name:   "unsorted values",
			values: []int{30, 10, 20},
			want:   ChunkLengthStats{Min: 10, Max: 30, Mean: 20, P95: 30},
		},
		{
			name:   "twenty values",
			values: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
			want:   ChunkLengthStats{Min: 1, Max: 20, Mean: 10.5, P95: 19},
		},
		{
			name:   "mean rounding",
			values: []int{1, 1, 2},
			want:   ChunkLengthStats{Min: 1, Max: 2, Mean: 1.33, P95: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeLengthStats(tt.values)
			if got != tt.want {
				t.Errorf("computeLengthStats(%v) = %+v, want %+v", tt.values, got, tt.want)
			}
		})
	}
}

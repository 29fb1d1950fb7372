package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks druginfo-rag/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when an operation targets a missing collection.
var ErrCollectionNotFound = errors.New("collection not found")

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k points nearest to query that satisfy filter. A nil filter matches everything.
	Search(ctx context.Context, collection string, query []float32, k int, filter *Filter) ([]SearchResult, error)

	// DeleteProductExcept removes every point of itemSeq whose ID is not in keep.
	// An empty keep removes all of the product's points.
	DeleteProductExcept(ctx context.Context, collection, itemSeq string, keep []string) error

	// EnsureCollection creates the collection with cosine distance if missing and
	// validates its vector size otherwise.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// RecreateCollection drops the collection, if present, and creates it empty.
	RecreateCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}

package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine similarity.
// It is meant for tests and offline development.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	vectorSize int
	points     map[string]Point
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) collection(name string) (*memoryCollection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// Upsert inserts or updates points in the collection.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vec) != c.vectorSize {
			return fmt.Errorf("point %s has dimension %d, collection expects %d", p.ID, len(p.Vec), c.vectorSize)
		}
	}
	for _, p := range points {
		c.points[p.ID] = Point{ID: p.ID, Vec: slices.Clone(p.Vec), Meta: maps.Clone(p.Meta)}
	}
	return nil
}

// Search returns the k most similar points satisfying filter. Ties are broken by
// (item_seq, section, part_idx), then by point id.
func (s *MemoryStore) Search(_ context.Context, collection string, query []float32, k int, filter *Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != c.vectorSize {
		return nil, fmt.Errorf("query has dimension %d, collection expects %d", len(query), c.vectorSize)
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if !filter.Matches(p.Meta) {
			continue
		}
		results = append(results, SearchResult{PointID: p.ID, Score: cosine(query, p.Vec), Meta: maps.Clone(p.Meta)})
	}
	slices.SortFunc(results, func(a, b SearchResult) int {
		pa, pb := ParsePayload(a.Meta), ParsePayload(b.Meta)
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(pa.ItemSeq, pb.ItemSeq),
			cmp.Compare(pa.Section, pb.Section),
			cmp.Compare(pa.PartIdx, pb.PartIdx),
			cmp.Compare(a.PointID, b.PointID),
		)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteProductExcept removes the product's points whose IDs are not in keep.
func (s *MemoryStore) DeleteProductExcept(_ context.Context, collection, itemSeq string, keep []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	for id, p := range c.points {
		if p.Meta[FieldItemSeq] == itemSeq && !slices.Contains(keep, id) {
			delete(c.points, id)
		}
	}
	return nil
}

// EnsureCollection creates the collection if missing and validates its vector size otherwise.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.vectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, c.vectorSize)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{vectorSize: vectorSize, points: make(map[string]Point)}
	return nil
}

// RecreateCollection replaces the collection with an empty one.
func (s *MemoryStore) RecreateCollection(_ context.Context, collection string, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = &memoryCollection{vectorSize: vectorSize, points: make(map[string]Point)}
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collection]
	return ok, nil
}

// Points returns a copy of every point in the collection, sorted by id.
func (s *MemoryStore) Points(collection string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	points := slices.Collect(maps.Values(c.points))
	slices.SortFunc(points, func(a, b Point) int { return cmp.Compare(a.ID, b.ID) })
	return points
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

package storage

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// SectionStore defines read operations on stored section chunks.
type SectionStore interface {
	// ListByProduct returns a product's chunks ordered by section and part_idx.
	ListByProduct(ctx context.Context, itemSeq string) ([]SectionRecord, error)
	// Get returns one chunk by identity triple. Returns ErrNotFound if not found.
	Get(ctx context.Context, key SectionKey) (*SectionRecord, error)
	// ListKeys returns every stored identity triple.
	ListKeys(ctx context.Context) ([]SectionKey, error)
}

// SectionRepo implements SectionStore.
type SectionRepo struct {
	db *DB
}

// NewSectionRepo creates a new SectionRepo.
func NewSectionRepo(db *DB) *SectionRepo {
	return &SectionRepo{db: db}
}

// ListByProduct returns a product's chunks ordered by section and part_idx.
// Returns an empty slice if the product has no chunks.
func (r *SectionRepo) ListByProduct(ctx context.Context, itemSeq string) ([]SectionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		r.db.rebind("SELECT id, item_seq, section, part_idx, text FROM product_sections WHERE item_seq = ? ORDER BY section, part_idx"),
		itemSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	sections := []SectionRecord{}
	for rows.Next() {
		var s SectionRecord
		if err := rows.Scan(&s.ID, &s.ItemSeq, &s.Section, &s.PartIdx, &s.Text); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sections, nil
}

// Get returns one chunk by identity triple. Returns ErrNotFound if not found.
func (r *SectionRepo) Get(ctx context.Context, key SectionKey) (*SectionRecord, error) {
	var s SectionRecord
	err := r.db.QueryRowContext(ctx,
		r.db.rebind("SELECT id, item_seq, section, part_idx, text FROM product_sections WHERE item_seq = ? AND section = ? AND part_idx = ?"),
		key.ItemSeq, key.Section, key.PartIdx,
	).Scan(&s.ID, &s.ItemSeq, &s.Section, &s.PartIdx, &s.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query section: %w", err)
	}
	return &s, nil
}

// ListKeys returns every stored identity triple, sorted.
func (r *SectionRepo) ListKeys(ctx context.Context) ([]SectionKey, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT item_seq, section, part_idx FROM product_sections ORDER BY item_seq, section, part_idx")
	if err != nil {
		return nil, fmt.Errorf("failed to query section keys: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	keys := []SectionKey{}
	for rows.Next() {
		var k SectionKey
		if err := rows.Scan(&k.ItemSeq, &k.Section, &k.PartIdx); err != nil {
			return nil, fmt.Errorf("failed to scan section key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return keys, nil
}

// CompareKeys orders identity triples by item_seq, section, then part_idx.
func CompareKeys(a, b SectionKey) int {
	return cmp.Or(
		cmp.Compare(a.ItemSeq, b.ItemSeq),
		cmp.Compare(a.Section, b.Section),
		cmp.Compare(a.PartIdx, b.PartIdx),
	)
}

func sortKeys(keys []SectionKey) {
	slices.SortFunc(keys, CompareKeys)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ProductStore defines the product write path and product lookups.
type ProductStore interface {
	// SaveProduct writes one product and its chunks, ingredients and aliases in a single transaction.
	SaveProduct(ctx context.Context, product *ProductRecord, sections []SectionRecord, aliases, ingredients []string) (*SaveResult, error)
	// Get returns a product by item_seq. Returns ErrNotFound if not found.
	Get(ctx context.Context, itemSeq string) (*ProductRecord, error)
	// ListItemSeqs returns every product id in ascending order.
	ListItemSeqs(ctx context.Context) ([]string, error)
}

// ProductRepo implements ProductStore.
type ProductRepo struct {
	db *DB
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(db *DB) *ProductRepo {
	return &ProductRepo{db: db}
}

// SaveProduct upserts the product row, upserts section chunks by identity triple and deletes
// the product's chunks that are not part of sections, replaces the ingredient set and adds
// aliases to the existing set. Either everything is committed or nothing is.
func (r *ProductRepo) SaveProduct(ctx context.Context, product *ProductRecord, sections []SectionRecord, aliases, ingredients []string) (result *SaveResult, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.upsertProduct(ctx, tx, product); err != nil {
		return nil, err
	}

	existing, err := r.sectionIDs(ctx, tx, product.ItemSeq)
	if err != nil {
		return nil, err
	}

	upsertSection := r.db.rebind(`INSERT INTO product_sections (item_seq, section, part_idx, text)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_seq, section, part_idx) DO UPDATE SET text = excluded.text`)
	for _, s := range sections {
		if _, err = tx.ExecContext(ctx, upsertSection, product.ItemSeq, s.Section, s.PartIdx, s.Text); err != nil {
			return nil, fmt.Errorf("failed to upsert section %s/%d: %w", s.Section, s.PartIdx, err)
		}
		delete(existing, SectionKey{ItemSeq: product.ItemSeq, Section: s.Section, PartIdx: s.PartIdx})
	}

	result = &SaveResult{}
	deleteSection := r.db.rebind("DELETE FROM product_sections WHERE id = ?")
	for key, id := range existing {
		if _, err = tx.ExecContext(ctx, deleteSection, id); err != nil {
			return nil, fmt.Errorf("failed to delete stale section %s/%d: %w", key.Section, key.PartIdx, err)
		}
		result.StaleKeys = append(result.StaleKeys, key)
	}
	sortKeys(result.StaleKeys)

	if _, err = tx.ExecContext(ctx, r.db.rebind("DELETE FROM product_ingredients WHERE item_seq = ?"), product.ItemSeq); err != nil {
		return nil, fmt.Errorf("failed to clear ingredients: %w", err)
	}
	insertIngredient := r.db.rebind(`INSERT INTO product_ingredients (item_seq, ingredient) VALUES (?, ?)
		ON CONFLICT (item_seq, ingredient) DO NOTHING`)
	for _, ing := range ingredients {
		if _, err = tx.ExecContext(ctx, insertIngredient, product.ItemSeq, ing); err != nil {
			return nil, fmt.Errorf("failed to insert ingredient: %w", err)
		}
	}

	insertAlias := r.db.rebind(`INSERT INTO product_aliases (alias, item_seq) VALUES (?, ?)
		ON CONFLICT (alias, item_seq) DO NOTHING`)
	for _, alias := range aliases {
		if _, err = tx.ExecContext(ctx, insertAlias, alias, product.ItemSeq); err != nil {
			return nil, fmt.Errorf("failed to insert alias: %w", err)
		}
	}

	result.Aliases, err = queryStrings(ctx, tx, r.db.rebind("SELECT alias FROM product_aliases WHERE item_seq = ? ORDER BY alias"), product.ItemSeq)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product %s: %w", product.ItemSeq, err)
	}
	return result, nil
}

func (r *ProductRepo) upsertProduct(ctx context.Context, tx *sql.Tx, p *ProductRecord) error {
	query := fmt.Sprintf(`INSERT INTO products (item_seq, entp_name, item_name, item_image, bizrno, open_de, update_de, is_otc, raw_json)
		VALUES (?, ?, ?, ?, ?, %[1]s, %[1]s, ?, %[2]s)
		ON CONFLICT (item_seq) DO UPDATE SET
			entp_name = excluded.entp_name,
			item_name = excluded.item_name,
			item_image = excluded.item_image,
			bizrno = excluded.bizrno,
			open_de = excluded.open_de,
			update_de = excluded.update_de,
			is_otc = excluded.is_otc,
			raw_json = excluded.raw_json`, r.db.dateParam(), r.db.jsonParam())

	_, err := tx.ExecContext(ctx, r.db.rebind(query),
		p.ItemSeq, p.EntpName, p.ItemName, p.ItemImage, p.Bizrno, p.OpenDe, p.UpdateDe, p.IsOTC, p.RawJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ItemSeq, err)
	}
	return nil
}

func (r *ProductRepo) sectionIDs(ctx context.Context, tx *sql.Tx, itemSeq string) (map[SectionKey]int64, error) {
	rows, err := tx.QueryContext(ctx, r.db.rebind("SELECT id, section, part_idx FROM product_sections WHERE item_seq = ?"), itemSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing sections: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := make(map[SectionKey]int64)
	for rows.Next() {
		var id int64
		key := SectionKey{ItemSeq: itemSeq}
		if err := rows.Scan(&id, &key.Section, &key.PartIdx); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		ids[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// Get returns a product by item_seq. Returns ErrNotFound if not found.
func (r *ProductRepo) Get(ctx context.Context, itemSeq string) (*ProductRecord, error) {
	query := fmt.Sprintf(`SELECT item_seq, COALESCE(entp_name, ''), COALESCE(item_name, ''), COALESCE(item_image, ''),
		COALESCE(bizrno, ''), %s, %s, is_otc, COALESCE(CAST(raw_json AS TEXT), '')
		FROM products WHERE item_seq = ?`, r.db.dateColumn("open_de"), r.db.dateColumn("update_de"))

	var p ProductRecord
	err := r.db.QueryRowContext(ctx, r.db.rebind(query), itemSeq).Scan(
		&p.ItemSeq, &p.EntpName, &p.ItemName, &p.ItemImage, &p.Bizrno, &p.OpenDe, &p.UpdateDe, &p.IsOTC, &p.RawJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return &p, nil
}

// ListItemSeqs returns every product id in ascending order.
func (r *ProductRepo) ListItemSeqs(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, "SELECT item_seq FROM products ORDER BY item_seq")
}

// queryer is satisfied by *sql.DB, *sql.Tx and *DB.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

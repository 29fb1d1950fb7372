package storage

import (
	"context"
	"fmt"
	"strings"
)

// CatalogStore defines the read-side lookups used at query time.
type CatalogStore interface {
	// ResolveAliases returns the ids of products having an alias matching alias under mode.
	ResolveAliases(ctx context.Context, alias string, mode AliasMode) ([]string, error)
	// GetProducts returns display attributes for the given ids. Missing ids are absent from the map.
	GetProducts(ctx context.Context, itemSeqs []string) (map[string]*ProductInfo, error)
	// ListAliases returns every distinct alias, sorted.
	ListAliases(ctx context.Context) ([]string, error)
	// ListIngredients returns every distinct ingredient, sorted.
	ListIngredients(ctx context.Context) ([]string, error)
	CountProducts(ctx context.Context) (int, error)
	CountProductsWithoutSections(ctx context.Context) (int, error)
	ChunkLengths(ctx context.Context) ([]ChunkLength, error)
}

// CatalogRepo implements CatalogStore.
type CatalogRepo struct {
	db *DB
}

// NewCatalogRepo creates a new CatalogRepo.
func NewCatalogRepo(db *DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ResolveAliases returns the sorted ids of products with a matching alias. Matching ignores case;
// AliasSubstring treats the filter as a literal substring.
func (r *CatalogRepo) ResolveAliases(ctx context.Context, alias string, mode AliasMode) ([]string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return []string{}, nil
	}

	var query string
	var arg string
	switch mode {
	case AliasExact:
		query = "SELECT DISTINCT item_seq FROM product_aliases WHERE LOWER(alias) = LOWER(?) ORDER BY item_seq"
		arg = alias
	case AliasSubstring, "":
		query = `SELECT DISTINCT item_seq FROM product_aliases WHERE LOWER(alias) LIKE '%' || LOWER(?) || '%' ESCAPE '\' ORDER BY item_seq`
		arg = likeEscaper.Replace(alias)
	default:
		return nil, fmt.Errorf("unknown alias match mode %q", mode)
	}

	ids, err := queryStrings(ctx, r.db, r.db.rebind(query), arg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alias: %w", err)
	}
	return ids, nil
}

// GetProducts returns display attributes, aliases and ingredients for the given ids in three queries.
func (r *CatalogRepo) GetProducts(ctx context.Context, itemSeqs []string) (map[string]*ProductInfo, error) {
	products := make(map[string]*ProductInfo, len(itemSeqs))
	if len(itemSeqs) == 0 {
		return products, nil
	}

	args := make([]any, len(itemSeqs))
	for i, id := range itemSeqs {
		args[i] = id
	}
	in := placeholders(len(itemSeqs))

	query := fmt.Sprintf(`SELECT item_seq, COALESCE(item_name, ''), COALESCE(entp_name, ''), COALESCE(item_image, ''), is_otc, %s
		FROM products WHERE item_seq IN (%s)`, r.db.dateColumn("update_de"), in)
	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	for rows.Next() {
		p := &ProductInfo{Aliases: []string{}, Ingredients: []string{}}
		if err := rows.Scan(&p.ItemSeq, &p.ItemName, &p.EntpName, &p.ItemImage, &p.IsOTC, &p.UpdateDe); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ItemSeq] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	_ = rows.Close()

	if err := r.collectPairs(ctx,
		fmt.Sprintf("SELECT item_seq, alias FROM product_aliases WHERE item_seq IN (%s) ORDER BY item_seq, alias", in), args,
		func(p *ProductInfo, v string) { p.Aliases = append(p.Aliases, v) }, products); err != nil {
		return nil, err
	}
	if err := r.collectPairs(ctx,
		fmt.Sprintf("SELECT item_seq, ingredient FROM product_ingredients WHERE item_seq IN (%s) ORDER BY item_seq, ingredient", in), args,
		func(p *ProductInfo, v string) { p.Ingredients = append(p.Ingredients, v) }, products); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *CatalogRepo) collectPairs(ctx context.Context, query string, args []any, add func(*ProductInfo, string), products map[string]*ProductInfo) error {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to query product attributes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var itemSeq, value string
		if err := rows.Scan(&itemSeq, &value); err != nil {
			return fmt.Errorf("failed to scan product attribute: %w", err)
		}
		if p, ok := products[itemSeq]; ok {
			add(p, value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

// ListAliases returns every distinct alias, sorted.
func (r *CatalogRepo) ListAliases(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, "SELECT DISTINCT alias FROM product_aliases ORDER BY alias")
}

// ListIngredients returns every distinct ingredient, sorted.
func (r *CatalogRepo) ListIngredients(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, "SELECT DISTINCT ingredient FROM product_ingredients ORDER BY ingredient")
}

// CountProducts returns the number of stored products.
func (r *CatalogRepo) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// CountProductsWithoutSections returns the number of products that have no stored chunk.
func (r *CatalogRepo) CountProductsWithoutSections(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p
		WHERE NOT EXISTS (SELECT 1 FROM product_sections s WHERE s.item_seq = p.item_seq)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count products without sections: %w", err)
	}
	return n, nil
}

// ChunkLengths returns the character length of every stored chunk.
func (r *CatalogRepo) ChunkLengths(ctx context.Context) ([]ChunkLength, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT section, LENGTH(text) FROM product_sections ORDER BY section, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk lengths: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	lengths := []ChunkLength{}
	for rows.Next() {
		var cl ChunkLength
		if err := rows.Scan(&cl.Section, &cl.Length); err != nil {
			return nil, fmt.Errorf("failed to scan chunk length: %w", err)
		}
		lengths = append(lengths, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lengths, nil
}

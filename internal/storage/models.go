package storage

// ProductRecord is a row of the products table.
type ProductRecord struct {
	ItemSeq   string
	EntpName  string
	ItemName  string
	ItemImage string
	Bizrno    string
	OpenDe    string // YYYY-MM-DD or empty
	UpdateDe  string // YYYY-MM-DD or empty
	IsOTC     bool
	RawJSON   string
}

// SectionKey is the identity triple of a section chunk.
type SectionKey struct {
	ItemSeq string
	Section string
	PartIdx int
}

// SectionRecord is a row of the product_sections table.
type SectionRecord struct {
	ID      int64
	ItemSeq string
	Section string
	PartIdx int
	Text    string
}

// Key returns the identity triple of the row.
func (s SectionRecord) Key() SectionKey {
	return SectionKey{ItemSeq: s.ItemSeq, Section: s.Section, PartIdx: s.PartIdx}
}

// SaveResult describes the effect of SaveProduct.
type SaveResult struct {
	// StaleKeys are the chunk identities that existed before the save and were removed.
	StaleKeys []SectionKey
	// Aliases is the full alias set of the product after the save, sorted.
	Aliases []string
}

// ProductInfo holds the display attributes of a product together with its aliases and ingredients.
type ProductInfo struct {
	ItemSeq     string
	ItemName    string
	EntpName    string
	ItemImage   string
	IsOTC       bool
	UpdateDe    string
	Aliases     []string
	Ingredients []string
}

// AliasMode selects how an alias filter matches stored aliases.
type AliasMode string

const (
	// AliasSubstring matches aliases containing the filter, ignoring case.
	AliasSubstring AliasMode = "substring"
	// AliasExact matches aliases equal to the filter, ignoring case.
	AliasExact AliasMode = "exact"
)

// ChunkLength is the length in characters of one stored chunk.
type ChunkLength struct {
	Section string
	Length  int
}

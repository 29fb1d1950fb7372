package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"druginfo-rag/internal/service"
)

// RawRecord is one source item as it appeared in the input.
type RawRecord struct {
	// Alias is the brand name the item was listed under, if the source grouped items by alias.
	Alias string
	// Data is the item JSON, preserved verbatim.
	Data json.RawMessage
}

// Product holds the product attributes of a canonical record.
type Product struct {
	ItemSeq   string
	EntpName  string
	ItemName  string
	ItemImage string
	Bizrno    string
	OpenDe    string
	UpdateDe  string
	IsOTC     bool
	RawJSON   string
}

// Canonical is a normalized source record.
type Canonical struct {
	Product Product
	// Sections holds raw section text by kind. Absent sections have no entry.
	Sections    map[SectionKind]string
	Aliases     []string
	Ingredients []string
}

// SectionKinds returns the kinds present in the record, in label order.
func (c *Canonical) SectionKinds() []SectionKind {
	kinds := make([]SectionKind, 0, len(c.Sections))
	for _, k := range AllSections() {
		if _, ok := c.Sections[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

var ingredientFields = []string{"mainItemIngr", "MAIN_ITEM_INGR", "itemIngrName", "ingrName"}

var (
	parenPattern    = regexp.MustCompile(`\(([^)]*)\)`)
	ingredientCode  = regexp.MustCompile(`\[[^\]]*\]`)
	fieldSeparators = regexp.MustCompile(`[,·+/|;]+`)
	nameSeparators  = regexp.MustCompile(`[,·+/|;\s]+`)
	dosageSuffix    = regexp.MustCompile(`(?i)\s*\d+(?:\.\d+)?\s*(?:mg|mcg|µg|ug|g|ml|iu|%|밀리그램|밀리그람|마이크로그램|그램|밀리리터)$`)
	numericOnly     = regexp.MustCompile(`^[\d.\s]+$`)
)

// Normalize maps a raw source record into the canonical schema.
// A record without itemSeq, or whose data is not a JSON object, fails with a MalformedRecord error.
func Normalize(raw RawRecord) (*Canonical, error) {
	if !json.Valid(raw.Data) {
		return nil, service.MalformedRecord("data", "invalid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(raw.Data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, service.MalformedRecord("data", fmt.Sprintf("not a JSON object: %v", err))
	}
	if fields == nil {
		return nil, service.MalformedRecord("data", "null record")
	}

	itemSeq := strings.TrimSpace(stringField(fields, "itemSeq"))
	if itemSeq == "" {
		return nil, service.MalformedRecord("itemSeq", "missing item sequence")
	}

	itemName := strings.TrimSpace(stringField(fields, "itemName"))
	c := &Canonical{
		Product: Product{
			ItemSeq:   itemSeq,
			EntpName:  strings.TrimSpace(stringField(fields, "entpName")),
			ItemName:  itemName,
			ItemImage: strings.TrimSpace(stringField(fields, "itemImage")),
			Bizrno:    strings.TrimSpace(stringField(fields, "bizrno")),
			OpenDe:    truncateDate(stringField(fields, "openDe")),
			UpdateDe:  truncateDate(stringField(fields, "updateDe")),
			IsOTC:     isOTC(fields),
			RawJSON:   string(bytes.TrimSpace(raw.Data)),
		},
		Sections: make(map[SectionKind]string),
	}

	for _, sf := range sectionFields {
		text := stringField(fields, sf.field)
		if strings.TrimSpace(text) == "" {
			continue
		}
		c.Sections[sf.kind] = text
	}

	aliases := []string{raw.Alias}
	aliases = append(aliases, listField(fields, "aliases")...)
	aliases = append(aliases, listField(fields, "alias")...)
	aliases = append(aliases, DisplayAlias(itemName))
	c.Aliases = dedupeFold(aliases)

	c.Ingredients = extractIngredients(fields, itemName)

	return c, nil
}

// DisplayAlias returns the display name with parenthesised parts removed.
func DisplayAlias(itemName string) string {
	return strings.TrimSpace(parenPattern.ReplaceAllString(itemName, ""))
}

func extractIngredients(fields map[string]any, itemName string) []string {
	var candidates []string
	for _, name := range ingredientFields {
		for _, v := range listField(fields, name) {
			candidates = append(candidates, fieldSeparators.Split(ingredientCode.ReplaceAllString(v, " "), -1)...)
		}
	}
	if len(candidates) == 0 {
		for _, m := range parenPattern.FindAllStringSubmatch(itemName, -1) {
			candidates = append(candidates, nameSeparators.Split(m[1], -1)...)
		}
	}

	cleaned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		c = strings.TrimSpace(dosageSuffix.ReplaceAllString(c, ""))
		if c == "" || numericOnly.MatchString(c) {
			continue
		}
		cleaned = append(cleaned, c)
	}
	return dedupeFold(cleaned)
}

// dedupeFold trims values and removes empty and case-insensitive duplicates, keeping the first spelling.
func dedupeFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func isOTC(fields map[string]any) bool {
	for _, name := range []string{"etcOtcName", "etcOtcCode"} {
		v := strings.TrimSpace(stringField(fields, name))
		if v == "" {
			continue
		}
		switch {
		case strings.Contains(v, "일반"), strings.EqualFold(v, "otc"):
			return true
		case strings.Contains(v, "전문"), strings.EqualFold(v, "etc"):
			return false
		}
	}
	return true
}

func truncateDate(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > 10 {
		return string(r[:10])
	}
	return s
}

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func listField(fields map[string]any, name string) []string {
	switch v := fields[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	default:
		if s := stringField(fields, name); s != "" {
			return []string{s}
		}
		return nil
	}
}

// Merge combines two records of the same product: next's content replaces c's,
// aliases are the union with c's spellings first.
func (c *Canonical) Merge(next *Canonical) *Canonical {
	merged := *next
	merged.Aliases = dedupeFold(append(slices.Clone(c.Aliases), next.Aliases...))
	return &merged
}

package vectorstore

import (
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Payload field names. section, item_seq and ingredient_keys carry keyword indexes.
const (
	FieldItemSeq        = "item_seq"
	FieldSection        = "section"
	FieldPartIdx        = "part_idx"
	FieldText           = "text"
	FieldItemName       = "item_name"
	FieldEntpName       = "entp_name"
	FieldAliases        = "aliases"
	FieldIngredients    = "ingredients"
	FieldIngredientKeys = "ingredient_keys"
	FieldIsOTC          = "is_otc"
	FieldUpdateDe       = "update_de"
	FieldEmbeddingModel = "embedding_model"
)

// IndexedFields are the payload fields that get a keyword index.
var IndexedFields = []string{FieldSection, FieldItemSeq, FieldIngredientKeys}

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:druginfo:product_sections"))

// PointID returns the deterministic point id of a chunk identity triple.
func PointID(itemSeq, section string, partIdx int) string {
	name := itemSeq + "\x00" + section + "\x00" + strconv.Itoa(partIdx)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// IngredientKey is the normalized form used for ingredient filtering.
func IngredientKey(ingredient string) string {
	return strings.ToLower(strings.TrimSpace(ingredient))
}

// Payload is the typed form of a point's metadata.
type Payload struct {
	ItemSeq        string
	Section        string
	PartIdx        int
	Text           string
	ItemName       string
	EntpName       string
	Aliases        []string
	Ingredients    []string
	IsOTC          bool
	UpdateDe       string
	EmbeddingModel string
}

// Map converts the payload to point metadata. ingredient_keys is derived from Ingredients.
func (p Payload) Map() map[string]any {
	keys := make([]any, 0, len(p.Ingredients))
	seen := make(map[string]struct{}, len(p.Ingredients))
	for _, ing := range p.Ingredients {
		k := IngredientKey(ing)
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return map[string]any{
		FieldItemSeq:        p.ItemSeq,
		FieldSection:        p.Section,
		FieldPartIdx:        int64(p.PartIdx),
		FieldText:           p.Text,
		FieldItemName:       p.ItemName,
		FieldEntpName:       p.EntpName,
		FieldAliases:        toAnyList(p.Aliases),
		FieldIngredients:    toAnyList(p.Ingredients),
		FieldIngredientKeys: keys,
		FieldIsOTC:          p.IsOTC,
		FieldUpdateDe:       p.UpdateDe,
		FieldEmbeddingModel: p.EmbeddingModel,
	}
}

// ParsePayload reads a payload back from point metadata. Missing fields are left zero.
func ParsePayload(meta map[string]any) Payload {
	return Payload{
		ItemSeq:        metaString(meta, FieldItemSeq),
		Section:        metaString(meta, FieldSection),
		PartIdx:        metaInt(meta, FieldPartIdx),
		Text:           metaString(meta, FieldText),
		ItemName:       metaString(meta, FieldItemName),
		EntpName:       metaString(meta, FieldEntpName),
		Aliases:        metaStrings(meta, FieldAliases),
		Ingredients:    metaStrings(meta, FieldIngredients),
		IsOTC:          metaBool(meta, FieldIsOTC),
		UpdateDe:       metaString(meta, FieldUpdateDe),
		EmbeddingModel: metaString(meta, FieldEmbeddingModel),
	}
}

// Filter restricts a search. Every non-empty field must hold.
type Filter struct {
	// Section matches the section keyword exactly.
	Section string
	// ItemSeqs matches points whose item_seq is any of the values.
	ItemSeqs []string
	// IngredientKeys must all be present in the point's ingredient_keys.
	IngredientKeys []string
}

// Empty reports whether the filter has no conditions.
func (f *Filter) Empty() bool {
	return f == nil || (f.Section == "" && len(f.ItemSeqs) == 0 && len(f.IngredientKeys) == 0)
}

// Matches reports whether point metadata satisfies every condition of the filter.
func (f *Filter) Matches(meta map[string]any) bool {
	if f.Empty() {
		return true
	}
	if f.Section != "" && metaString(meta, FieldSection) != f.Section {
		return false
	}
	if len(f.ItemSeqs) > 0 && !slices.Contains(f.ItemSeqs, metaString(meta, FieldItemSeq)) {
		return false
	}
	if len(f.IngredientKeys) > 0 {
		have := metaStrings(meta, FieldIngredientKeys)
		for _, k := range f.IngredientKeys {
			if !slices.Contains(have, k) {
				return false
			}
		}
	}
	return true
}

func toAnyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaBool(meta map[string]any, key string) bool {
	b, _ := meta[key].(bool)
	return b
}

// metaInt accepts the integer and float encodings a payload can come back with.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metaStrings(meta map[string]any, key string) []string {
	switch v := meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

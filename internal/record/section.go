package record

import (
	"fmt"
	"strings"

	"druginfo-rag/internal/service"
)

// SectionKind is one of the fixed drug-label categories.
type SectionKind string

const (
	Efficacy     SectionKind = "efficacy"
	Dosage       SectionKind = "dosage"
	Warnings     SectionKind = "warnings"
	Precautions  SectionKind = "precautions"
	Interactions SectionKind = "interactions"
	SideEffects  SectionKind = "side_effects"
	Storage      SectionKind = "storage"
)

// sectionFields maps source field names to section kinds, in label order.
var sectionFields = []struct {
	field string
	kind  SectionKind
}{
	{"efcyQesitm", Efficacy},
	{"useMethodQesitm", Dosage},
	{"atpnWarnQesitm", Warnings},
	{"atpnQesitm", Precautions},
	{"intrcQesitm", Interactions},
	{"seQesitm", SideEffects},
	{"depositMethodQesitm", Storage},
}

// AllSections returns every section kind in label order.
func AllSections() []SectionKind {
	kinds := make([]SectionKind, len(sectionFields))
	for i, f := range sectionFields {
		kinds[i] = f.kind
	}
	return kinds
}

// SourceField returns the source record field name for the section kind.
func (k SectionKind) SourceField() string {
	for _, f := range sectionFields {
		if f.kind == k {
			return f.field
		}
	}
	return ""
}

// Valid reports whether k is part of the fixed enumeration.
func (k SectionKind) Valid() bool {
	return k.SourceField() != ""
}

func (k SectionKind) String() string {
	return string(k)
}

// ParseSection parses a section name. An empty string yields "" with no error.
func ParseSection(s string) (SectionKind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "", nil
	}
	k := SectionKind(s)
	if !k.Valid() {
		return "", service.InvalidFilter("section", fmt.Sprintf("unknown section kind %q", s))
	}
	return k, nil
}

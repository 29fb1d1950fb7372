package indexer

import "druginfo-rag/internal/record"

// Chunk is one passage of a section's text.
type Chunk struct {
	Index int    // position within the section, starting at 0
	Text  string // trimmed contiguous substring of the section text
}

// SectionChunk is a chunk tagged with its identity triple.
type SectionChunk struct {
	ItemSeq string
	Section record.SectionKind
	PartIdx int
	Text    string
}

// Status is the outcome of ingesting one raw record.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusSkippedMalformed Status = "skipped-malformed"
	StatusFailedEmbedding  Status = "failed-embedding"
	StatusFailedStore      Status = "failed-store"
	StatusCancelled        Status = "cancelled"
)

// Outcome reports what happened to one raw record.
type Outcome struct {
	Index   int    `json:"index"` // position in the input batch
	ItemSeq string `json:"item_seq,omitempty"`
	Status  Status `json:"status"`
	Chunks  int    `json:"chunks"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// Report is the per-record result of an ingest run.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have the given status.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Options control one ingest run.
type Options struct {
	ChunkBudget int
	Overlap     int
	// RecreateIndex drops and recreates the vector collection before any upsert.
	RecreateIndex bool
	// EmbeddingModel, when set, must match the configured embedding model.
	EmbeddingModel string
	Workers        int
}

package indexer

import (
	"iter"
	"regexp"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	// DefaultChunkBudget is the maximum number of runes per chunk.
	DefaultChunkBudget = 1000
	// ChunkerVersion identifies the boundary algorithm. Changing how boundaries are
	// chosen changes chunk identities, so bump it together with any such change.
	ChunkerVersion = "block-sentence-v1"
)

// Sentence ends: terminal punctuation (optionally followed by closing quotes or
// brackets) and then whitespace, or a run of line breaks.
var sentenceEnd = regexp.MustCompile(`[.!?。]+["'”’)\]]*\s+|\n+`)

// Chunker splits section text into bounded, contiguous passages.
// It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	budget  int
	overlap int
	parser  goldmark.Markdown
}

// NewChunker creates a chunker. A non-positive budget selects DefaultChunkBudget,
// a negative overlap is treated as zero and an overlap at or above the budget is
// clamped to a quarter of it.
func NewChunker(budget, overlap int) *Chunker {
	if budget <= 0 {
		budget = DefaultChunkBudget
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= budget {
		overlap = budget / 4
	}
	return &Chunker{
		budget:  budget,
		overlap: overlap,
		parser:  goldmark.New(),
	}
}

// Budget returns the effective chunk budget in runes.
func (c *Chunker) Budget() int { return c.budget }

// Overlap returns the effective overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// unit is an indivisible byte range of the source text.
type unit struct {
	start, end int
	runes      int
}

// Chunks returns the chunks of text in order. The sequence is computed from text alone,
// so iterating it again yields the same chunks.
func (c *Chunker) Chunks(content string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if strings.TrimSpace(content) == "" {
			return
		}

		units := c.units(content)
		index := 0
		i := 0
		for i < len(units) {
			j, size := i, 0
			for j < len(units) && size+units[j].runes <= c.budget {
				size += units[j].runes
				j++
			}

			chunkText := strings.TrimSpace(content[units[i].start:units[j-1].end])
			if chunkText != "" {
				if !yield(Chunk{Index: index, Text: chunkText}) {
					return
				}
				index++
			}
			if j >= len(units) {
				return
			}

			// Back the next start up by whole units, never to i itself.
			next, back := j, 0
			for next-1 > i && back+units[next-1].runes <= c.overlap &&
				back+units[next-1].runes+units[j].runes <= c.budget {
				back += units[next-1].runes
				next--
			}
			i = next
		}
	}
}

// Split returns all chunks of text.
func (c *Chunker) Split(content string) []Chunk {
	return slices.Collect(c.Chunks(content))
}

// units cuts text at block starts, then at sentence ends, then at the budget.
func (c *Chunker) units(content string) []unit {
	var units []unit
	cuts := c.blockCuts(content)
	for k := 0; k+1 < len(cuts); k++ {
		blockStart, blockEnd := cuts[k], cuts[k+1]
		start := blockStart
		for _, m := range sentenceEnd.FindAllStringIndex(content[blockStart:blockEnd], -1) {
			end := blockStart + m[1]
			units = c.appendUnit(units, content, start, end)
			start = end
		}
		units = c.appendUnit(units, content, start, blockEnd)
	}
	return units
}

// appendUnit appends content[start:end], hard-split into pieces of at most budget runes.
func (c *Chunker) appendUnit(units []unit, content string, start, end int) []unit {
	if start >= end {
		return units
	}
	pieceStart, runes := start, 0
	for pos := range content[start:end] {
		if runes == c.budget {
			units = append(units, unit{start: pieceStart, end: start + pos, runes: runes})
			pieceStart, runes = start+pos, 0
		}
		runes++
	}
	return append(units, unit{start: pieceStart, end: end, runes: runes})
}

// blockCuts returns sorted byte offsets where block-level elements begin,
// always including 0 and len(content).
func (c *Chunker) blockCuts(content string) []int {
	source := []byte(content)
	doc := c.parser.Parser().Parse(text.NewReader(source))

	cuts := []int{0, len(content)}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		offset := lines.At(0).Start
		if offset < 0 || offset > len(content) {
			return ast.WalkSkipChildren, nil
		}
		// Cut at the start of the line so list markers and indentation stay with the block.
		cuts = append(cuts, strings.LastIndexByte(content[:offset], '\n')+1)
		return ast.WalkSkipChildren, nil
	})

	slices.Sort(cuts)
	return slices.Compact(cuts)
}

package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var hashTokenPattern = regexp.MustCompile(`\p{L}+|\p{N}+`)

// HashEmbedder is a deterministic, offline Embedder based on feature hashing of
// word tokens and character bigrams. Texts sharing vocabulary get similar vectors.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the vector size.
func (e *HashEmbedder) Dimension() int { return e.dimension }

// EmbedTexts returns one L2-normalized vector per text.
func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if e.dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", e.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float64, e.dimension)
	for _, tok := range hashTokenPattern.FindAllString(strings.ToLower(text), -1) {
		e.add(vec, tok, 1)
		runes := []rune(tok)
		for j := 0; j+1 < len(runes); j++ {
			e.add(vec, string(runes[j:j+2]), 0.5)
		}
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	result := make([]float32, e.dimension)
	if norm == 0 {
		return result
	}
	for i, v := range vec {
		result[i] = float32(v / norm)
	}
	return result
}

func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

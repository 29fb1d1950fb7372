package rag

import "time"

const (
	// DefaultK is the number of passages returned when the caller does not ask for a count.
	DefaultK = 8
	// MaxK is the largest accepted passage count.
	MaxK = 50
	// CandidateMargin is how many hits beyond k are requested from the vector index.
	// The index does not order equal scores by chunk identity, and re-verification may
	// drop hits, so ranking happens over the wider candidate set.
	CandidateMargin = 16
	// DefaultTimeout bounds one search.
	DefaultTimeout = 10 * time.Second
)

// Query is a hybrid retrieval request.
type Query struct {
	// Text is the natural-language query to embed. Required.
	Text string
	// Section restricts results to one section kind. Empty means any section.
	Section string
	// Alias restricts results to products with a matching alias. Empty means no alias filter.
	Alias string
	// Ingredients restricts results to products containing every listed ingredient.
	Ingredients []string
	// K is the maximum number of passages, 1..MaxK.
	K int
}

// Passage is one retrieved section chunk with its product's display attributes.
type Passage struct {
	ItemSeq     string   `json:"item_seq"`
	Section     string   `json:"section"`
	PartIdx     int      `json:"part_idx"`
	Text        string   `json:"text"`
	Score       float32  `json:"score"`
	ItemName    string   `json:"item_name"`
	EntpName    string   `json:"entp_name"`
	ItemImage   string   `json:"item_image"`
	IsOTC       bool     `json:"is_otc"`
	UpdateDe    string   `json:"update_de"`
	Aliases     []string `json:"aliases"`
	Ingredients []string `json:"ingredients"`
}

// Result is the outcome of a search.
type Result struct {
	// Passages are ordered by score descending, ties by (item_seq, section, part_idx).
	Passages []Passage
	// NoMatchingProducts is set when the alias filter matched no product; the index was not queried.
	NoMatchingProducts bool
}

// AskRequest represents a question answered from retrieved passages.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string
	// Section, Alias, Ingredients and K filter the retrieval exactly like Query.
	Section     string
	Alias       string
	Ingredients []string
	K           int
}

// Reference identifies a passage that was used in the answer.
type Reference struct {
	ItemSeq  string  `json:"item_seq"`
	ItemName string  `json:"item_name"`
	Section  string  `json:"section"`
	PartIdx  int     `json:"part_idx"`
	Score    float32 `json:"score"`
}

// AskResponse represents the response from a question.
type AskResponse struct {
	// Answer is the generated answer from the LLM.
	Answer string `json:"answer"`
	// References are the passages that were given to the LLM.
	References []Reference `json:"references"`
	// NoMatchingProducts mirrors Result.NoMatchingProducts.
	NoMatchingProducts bool `json:"no_matching_products,omitempty"`
}

package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm_client.go -package=mocks druginfo-rag/internal/rag LLMClient
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks druginfo-rag/internal/rag Engine

import (
	"context"
	"fmt"
	"strings"

	"druginfo-rag/internal/contextutil"
	"druginfo-rag/internal/llm"
	"druginfo-rag/internal/record"
	"druginfo-rag/internal/service"
)

// NoInformationAnswer is returned when retrieval finds nothing to answer from.
const NoInformationAnswer = "제공된 의약품 정보에서 해당 질문에 대한 내용을 찾을 수 없습니다."

const systemPrompt = "You are a pharmacist assistant that answers questions about over-the-counter drugs " +
	"using only the provided drug label passages. Answer in the language of the question. " +
	"If the passages do not contain the answer, say so. Cite the product name and section you used. " +
	"Do not give a diagnosis; advise consulting a doctor or pharmacist when symptoms persist."

// LLMClient is the chat model used for answer synthesis.
type LLMClient interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// Engine answers questions from retrieved passages.
type Engine interface {
	// Ask retrieves passages for the question and synthesizes an answer from them.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	searcher  Searcher
	llmClient LLMClient
}

// NewEngine creates a new RAG engine.
func NewEngine(searcher Searcher, llmClient LLMClient) Engine {
	return &ragEngine{searcher: searcher, llmClient: llmClient}
}

// Ask answers a question using RAG. With no passages the model is not called.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	k := req.K
	if k == 0 {
		k = DefaultK
	}
	res, err := e.searcher.Search(ctx, Query{
		Text:        req.Question,
		Section:     req.Section,
		Alias:       req.Alias,
		Ingredients: req.Ingredients,
		K:           k,
	})
	if err != nil {
		return AskResponse{}, err
	}

	if len(res.Passages) == 0 {
		logger.InfoContext(ctx, "no passages found for question", "no_matching_products", res.NoMatchingProducts)
		return AskResponse{
			Answer:             NoInformationAnswer,
			References:         []Reference{},
			NoMatchingProducts: res.NoMatchingProducts,
		}, nil
	}

	contextString := formatContext(res.Passages)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("%s\n\n%s", req.Question, contextString)},
	}
	logger.DebugContext(ctx, "sending request to LLM", "passages", len(res.Passages), "context_length", len(contextString))

	answer, err := e.llmClient.ChatWithMessages(ctx, messages, llm.ChatParams{Temperature: 0.2})
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return AskResponse{}, service.Kind(service.ErrExternalService, fmt.Errorf("failed to get LLM response: %w", err))
	}

	references := make([]Reference, len(res.Passages))
	for i, p := range res.Passages {
		references[i] = Reference{ItemSeq: p.ItemSeq, ItemName: p.ItemName, Section: p.Section, PartIdx: p.PartIdx, Score: p.Score}
	}

	logger.InfoContext(ctx, "question answered", "passages", len(res.Passages), "answer_length", len(answer))
	return AskResponse{Answer: answer, References: references}, nil
}

// formatContext renders passages as a numbered context block.
func formatContext(passages []Passage) string {
	var b strings.Builder
	b.WriteString("--- Drug label passages ---\n\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s (%s)", i+1, p.ItemName, p.EntpName)
		if len(p.Ingredients) > 0 {
			fmt.Fprintf(&b, " 성분: %s", strings.Join(p.Ingredients, ", "))
		}
		fmt.Fprintf(&b, "\nSection: %s\n", sectionLabel(p.Section))
		fmt.Fprintf(&b, "Content: %s\n\n", p.Text)
	}
	b.WriteString("--- End passages ---")
	return b.String()
}

var sectionLabels = map[record.SectionKind]string{
	record.Efficacy:     "효능 (efficacy)",
	record.Dosage:       "용법 (dosage)",
	record.Warnings:     "경고 (warnings)",
	record.Precautions:  "주의사항 (precautions)",
	record.Interactions: "상호작용 (interactions)",
	record.SideEffects:  "부작용 (side effects)",
	record.Storage:      "보관법 (storage)",
}

func sectionLabel(section string) string {
	if l, ok := sectionLabels[record.SectionKind(section)]; ok {
		return l
	}
	return section
}

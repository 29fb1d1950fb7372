package rag_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"druginfo-rag/internal/indexer"
	"druginfo-rag/internal/llm"
	llm_mocks "druginfo-rag/internal/llm/mocks"
	"druginfo-rag/internal/rag"
	"druginfo-rag/internal/record"
	"druginfo-rag/internal/service"
	"druginfo-rag/internal/storage"
	"druginfo-rag/internal/vectorstore"
	vectorstore_mocks "druginfo-rag/internal/vectorstore/mocks"
)

const (
	collection = "product_sections"
	dimension  = 64
)

type corpus struct {
	db      *storage.DB
	catalog *storage.CatalogRepo
	vectors *vectorstore.MemoryStore
}

// newCorpus ingests ten products, each with efficacy, dosage and side effect sections.
// Products 1..5 contain 아세트아미노펜, 6..10 contain 이부프로펜; product 3 also contains 카페인.
func newCorpus(t *testing.T) *corpus {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	c := &corpus{db: db, catalog: storage.NewCatalogRepo(db), vectors: vectorstore.NewMemoryStore()}
	pipeline := indexer.NewPipeline(storage.NewProductRepo(db), storage.NewSectionRepo(db), c.catalog,
		llm.NewHashEmbedder(dimension), c.vectors, indexer.Config{Collection: collection, VectorSize: dimension, EmbeddingModel: "hash"})

	var raws []record.RawRecord
	for i := 1; i <= 10; i++ {
		ingredient := "아세트아미노펜"
		if i > 5 {
			ingredient = "이부프로펜"
		}
		if i == 3 {
			ingredient += ", 카페인"
		}
		data, err := json.Marshal(map[string]any{
			"itemSeq":         fmt.Sprintf("%03d", i),
			"itemName":        fmt.Sprintf("진통제%d호", i),
			"entpName":        "테스트제약",
			"mainItemIngr":    ingredient,
			"efcyQesitm":      fmt.Sprintf("이 약은 두통, 치통, 생리통의 완화에 사용합니다. 제품 %d.", i),
			"useMethodQesitm": "성인은 1회 1정, 1일 3회 복용합니다.",
			"seQesitm":        fmt.Sprintf("발진, 구역, 구토가 나타날 수 있습니다. 제품 %d.", i),
		})
		require.NoError(t, err)
		raws = append(raws, record.RawRecord{Alias: fmt.Sprintf("진통제%d", i), Data: data})
	}
	report, err := pipeline.Ingest(context.Background(), raws, indexer.Options{})
	require.NoError(t, err)
	require.Equal(t, 10, report.Count(indexer.StatusSuccess))
	return c
}

func (c *corpus) retriever(cfg rag.RetrieverConfig) *rag.Retriever {
	cfg.Collection = collection
	return rag.NewRetriever(c.catalog, llm.NewHashEmbedder(dimension), c.vectors, cfg)
}

func assertOrdered(t *testing.T, passages []rag.Passage) {
	t.Helper()
	for i := 1; i < len(passages); i++ {
		a, b := passages[i-1], passages[i]
		require.GreaterOrEqual(t, a.Score, b.Score)
		if a.Score == b.Score {
			require.Negative(t, storage.CompareKeys(
				storage.SectionKey{ItemSeq: a.ItemSeq, Section: a.Section, PartIdx: a.PartIdx},
				storage.SectionKey{ItemSeq: b.ItemSeq, Section: b.Section, PartIdx: b.PartIdx},
			))
		}
	}
}

func TestSearch_ValidationBeforeNetwork(t *testing.T) {
	ctrl := gomock.NewController(t)
	vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
	embedder := llm_mocks.NewMockEmbedder(ctrl)
	r := rag.NewRetriever(nil, embedder, vectors, rag.RetrieverConfig{Collection: collection})

	tests := []struct {
		name  string
		query rag.Query
		field string
	}{
		{name: "empty text", query: rag.Query{Text: "  ", K: 5}, field: "query"},
		{name: "zero k", query: rag.Query{Text: "두통"}, field: "k"},
		{name: "k above max", query: rag.Query{Text: "두통", K: rag.MaxK + 1}, field: "k"},
		{name: "negative k", query: rag.Query{Text: "두통", K: -1}, field: "k"},
		{name: "unknown section", query: rag.Query{Text: "두통", K: 5, Section: "dosage_form"}, field: "section"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Search(context.Background(), tt.query)
			require.ErrorIs(t, err, service.ErrInvalidFilter)
			var ve *service.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSearch_AliasWithoutProductsSkipsIndex(t *testing.T) {
	c := newCorpus(t)
	ctrl := gomock.NewController(t)
	vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
	embedder := llm_mocks.NewMockEmbedder(ctrl)
	r := rag.NewRetriever(c.catalog, embedder, vectors, rag.RetrieverConfig{Collection: collection})

	res, err := r.Search(context.Background(), rag.Query{Text: "두통", Alias: "존재하지않는약", K: 5})
	require.NoError(t, err)
	assert.True(t, res.NoMatchingProducts)
	assert.Empty(t, res.Passages)
}

func TestSearch_SectionFilterOverTenProducts(t *testing.T) {
	c := newCorpus(t)
	r := c.retriever(rag.RetrieverConfig{})

	res, err := r.Search(context.Background(), rag.Query{Text: "부작용 발진 구토", Section: "side_effects", K: 5})
	require.NoError(t, err)
	require.Len(t, res.Passages, 5)
	for _, p := range res.Passages {
		assert.Equal(t, "side_effects", p.Section)
		assert.Equal(t, "테스트제약", p.EntpName)
		assert.NotEmpty(t, p.ItemName)
	}
	assertOrdered(t, res.Passages)

	res, err = r.Search(context.Background(), rag.Query{Text: "부작용", Section: "side_effects", K: 50})
	require.NoError(t, err)
	assert.Len(t, res.Passages, 10, "one side effect passage per product")
}

func TestSearch_AliasFilter(t *testing.T) {
	c := newCorpus(t)
	r := c.retriever(rag.RetrieverConfig{AliasMode: storage.AliasExact})

	res, err := r.Search(context.Background(), rag.Query{Text: "복용 방법", Alias: "진통제7", K: 10})
	require.NoError(t, err)
	require.Len(t, res.Passages, 3)
	for _, p := range res.Passages {
		assert.Equal(t, "007", p.ItemSeq)
		assert.Contains(t, p.Aliases, "진통제7")
	}
}

func TestSearch_SubstringAliasFilter(t *testing.T) {
	c := newCorpus(t)
	r := c.retriever(rag.RetrieverConfig{})

	// 진통제1 matches 진통제1 and 진통제10 as a substring.
	res, err := r.Search(context.Background(), rag.Query{Text: "효능", Alias: "진통제1", Section: "efficacy", K: 10})
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Passages))
	for _, p := range res.Passages {
		ids = append(ids, p.ItemSeq)
	}
	slices.Sort(ids)
	assert.Equal(t, []string{"001", "010"}, ids)
}

func TestSearch_IngredientFilterRequiresAll(t *testing.T) {
	c := newCorpus(t)
	r := c.retriever(rag.RetrieverConfig{})

	res, err := r.Search(context.Background(), rag.Query{Text: "두통", Ingredients: []string{"이부프로펜"}, K: 50})
	require.NoError(t, err)
	require.Len(t, res.Passages, 15)
	for _, p := range res.Passages {
		assert.Contains(t, p.Ingredients, "이부프로펜")
	}

	res, err = r.Search(context.Background(), rag.Query{Text: "두통", Ingredients: []string{" 아세트아미노펜", "카페인"}, K: 50})
	require.NoError(t, err)
	require.Len(t, res.Passages, 3)
	for _, p := range res.Passages {
		assert.Equal(t, "003", p.ItemSeq)
	}
}

func TestSearch_OrderingAndReverification(t *testing.T) {
	c := newCorpus(t)
	ctrl := gomock.NewController(t)
	vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
	r := rag.NewRetriever(c.catalog, llm.NewHashEmbedder(dimension), vectors, rag.RetrieverConfig{Collection: collection})

	hit := func(itemSeq, section string, part int, score float32) vectorstore.SearchResult {
		p := vectorstore.Payload{ItemSeq: itemSeq, Section: section, PartIdx: part, Text: "t"}
		return vectorstore.SearchResult{PointID: vectorstore.PointID(itemSeq, section, part), Score: score, Meta: p.Map()}
	}
	vectors.EXPECT().
		Search(gomock.Any(), collection, gomock.Any(), 3+rag.CandidateMargin, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ []float32, _ int, f *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
			assert.Equal(t, "efficacy", f.Section)
			return []vectorstore.SearchResult{
				hit("002", "efficacy", 0, 0.5),
				hit("001", "side_effects", 0, 0.9), // outside the section filter
				hit("999", "efficacy", 0, 0.8),     // product no longer stored
				hit("001", "efficacy", 0, 0.5),
				hit("003", "efficacy", 0, 0.7),
			}, nil
		})

	res, err := r.Search(context.Background(), rag.Query{Text: "효능", Section: "efficacy", K: 3})
	require.NoError(t, err)
	require.Len(t, res.Passages, 3)
	assert.Equal(t, []string{"003", "001", "002"}, []string{res.Passages[0].ItemSeq, res.Passages[1].ItemSeq, res.Passages[2].ItemSeq})
	assertOrdered(t, res.Passages)
}

func TestSearch_EqualScoresFollowIdentityAcrossK(t *testing.T) {
	c := newCorpus(t)
	ctx := context.Background()

	// Give every efficacy chunk the same vector so all scores tie.
	same := make([]float32, dimension)
	same[0] = 1
	var tied []vectorstore.Point
	for _, p := range c.vectors.Points(collection) {
		if p.Meta[vectorstore.FieldSection] == "efficacy" {
			p.Vec = same
			tied = append(tied, p)
		}
	}
	require.Len(t, tied, 10)
	require.NoError(t, c.vectors.Upsert(ctx, collection, tied))

	res, err := c.retriever(rag.RetrieverConfig{}).Search(ctx, rag.Query{Text: "효능", Section: "efficacy", K: 3})
	require.NoError(t, err)
	require.Len(t, res.Passages, 3)
	assert.Equal(t, []string{"001", "002", "003"}, []string{res.Passages[0].ItemSeq, res.Passages[1].ItemSeq, res.Passages[2].ItemSeq})
}

func TestSearch_RanksBeyondIndexOrder(t *testing.T) {
	c := newCorpus(t)
	ctrl := gomock.NewController(t)
	vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
	r := rag.NewRetriever(c.catalog, llm.NewHashEmbedder(dimension), vectors, rag.RetrieverConfig{Collection: collection})

	// The index returns equal scores in arbitrary order; the lowest identities come last.
	vectors.EXPECT().
		Search(gomock.Any(), collection, gomock.Any(), 2+rag.CandidateMargin, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ []float32, k int, _ *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
			var hits []vectorstore.SearchResult
			for i := 10; i >= 1; i-- {
				seq := fmt.Sprintf("%03d", i)
				p := vectorstore.Payload{ItemSeq: seq, Section: "efficacy", Text: "t"}
				hits = append(hits, vectorstore.SearchResult{PointID: vectorstore.PointID(seq, "efficacy", 0), Score: 0.5, Meta: p.Map()})
			}
			return hits[:min(k, len(hits))], nil
		})

	res, err := r.Search(context.Background(), rag.Query{Text: "효능", Section: "efficacy", K: 2})
	require.NoError(t, err)
	require.Len(t, res.Passages, 2)
	assert.Equal(t, "001", res.Passages[0].ItemSeq)
	assert.Equal(t, "002", res.Passages[1].ItemSeq)
}

func TestSearch_Errors(t *testing.T) {
	c := newCorpus(t)
	ctrl := gomock.NewController(t)

	t.Run("embedding failure", func(t *testing.T) {
		embedder := llm_mocks.NewMockEmbedder(ctrl)
		embedder.EXPECT().EmbedTexts(gomock.Any(), []string{"두통"}).Return(nil, &llm.StatusError{StatusCode: 500})
		r := rag.NewRetriever(c.catalog, embedder, c.vectors, rag.RetrieverConfig{Collection: collection})

		_, err := r.Search(context.Background(), rag.Query{Text: "두통", K: 5})
		assert.ErrorIs(t, err, service.ErrEmbeddingService)
	})

	t.Run("vector store failure", func(t *testing.T) {
		vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
		vectors.EXPECT().Search(gomock.Any(), collection, gomock.Any(), 5+rag.CandidateMargin, gomock.Any()).Return(nil, errors.New("connection refused"))
		r := rag.NewRetriever(c.catalog, llm.NewHashEmbedder(dimension), vectors, rag.RetrieverConfig{Collection: collection})

		_, err := r.Search(context.Background(), rag.Query{Text: "두통", K: 5})
		assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	})

	t.Run("missing collection", func(t *testing.T) {
		r := rag.NewRetriever(c.catalog, llm.NewHashEmbedder(dimension), vectorstore.NewMemoryStore(), rag.RetrieverConfig{Collection: collection})

		_, err := r.Search(context.Background(), rag.Query{Text: "두통", K: 5})
		assert.ErrorIs(t, err, service.ErrStoreUnavailable)
		assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	})

	t.Run("metadata store failure", func(t *testing.T) {
		db, err := storage.New(filepath.Join(t.TempDir(), "closed.db"))
		require.NoError(t, err)
		require.NoError(t, db.Close())
		r := rag.NewRetriever(storage.NewCatalogRepo(db), llm.NewHashEmbedder(dimension), c.vectors, rag.RetrieverConfig{Collection: collection})

		_, err = r.Search(context.Background(), rag.Query{Text: "두통", Alias: "진통제", K: 5})
		assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		embedder := llm_mocks.NewMockEmbedder(ctrl)
		embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ []string) ([][]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		r := rag.NewRetriever(c.catalog, embedder, c.vectors, rag.RetrieverConfig{Collection: collection, Timeout: 20 * time.Millisecond})

		_, err := r.Search(context.Background(), rag.Query{Text: "두통", K: 5})
		assert.ErrorIs(t, err, service.ErrTimeout)
	})
}

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	"github.com/jinford/lecture-rag/internal/module/search/adapter/index"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// makeChunk はテスト用チャンクを生成する
func makeChunk(id, videoID string, startTime float64, content string, keywords []string, embedding []float32) *ingestdomain.Chunk {
	return &ingestdomain.Chunk{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata: ingestdomain.ChunkMetadata{
			Course:      "javascript",
			Section:     "section-1",
			VideoID:     videoID,
			StartTime:   startTime,
			EndTime:     startTime + 60,
			Keywords:    keywords,
			ContentHash: ingestdomain.HashContent(content),
		},
	}
}

// newTestEngine はFileStoreとモックEmbedderを組んだエンジンを生成する
func newTestEngine(t *testing.T, embedder *mockEmbedder, chunks ...*ingestdomain.Chunk) (*HybridEngine, *index.FileStore) {
	t.Helper()

	store := newTestStore(t)
	require.NoError(t, store.PutChunks(context.Background(), chunks))

	svc := NewEmbeddingService(store, embedder, nil)
	eng := NewHybridEngine(store, svc, DefaultConfig(), nil)

	return eng, store
}

func TestHybridSearch_FusesSemanticAndKeyword(t *testing.T) {
	// キーワード"closure"を持つチャンクと、キーワードなしだが類似度の高いチャンクの両方が融合結果に現れる
	ctx := context.Background()

	keywordChunk := makeChunk("kw", "v1", 0, "talks about something general", []string{"closure"}, []float32{0, 1})
	semanticChunk := makeChunk("sem", "v2", 0, "deep dive into lexical environments", nil, []float32{1, 0})

	embedder := &mockEmbedder{
		vectors: map[string][]float32{
			"what is a closure": {1, 0}, // semanticChunkと一致、keywordChunkとは直交
		},
	}

	eng, _ := newTestEngine(t, embedder, keywordChunk, semanticChunk)

	results, err := eng.HybridSearch(ctx, "what is a closure", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// セマンティック側は重み1.2が掛かり上位に来る
	assert.Equal(t, "sem", results[0].Chunk.ID)
	assert.InDelta(t, 1.0*DefaultSemanticWeight, results[0].Score, 1e-6)

	// キーワード側はクエリ4語中1語ヒットで0.25
	assert.Equal(t, "kw", results[1].Chunk.ID)
	assert.InDelta(t, 0.25, results[1].Score, 1e-6)
}

func TestHybridSearch_AgreementBoost(t *testing.T) {
	// 両方式で発見されたチャンクはmax(semantic, keyword)×ブースト係数のスコアになる（平均ではない）
	ctx := context.Background()

	chunk := makeChunk("both", "v1", 0, "closures capture their scope", []string{"closure"}, []float32{1, 0})

	embedder := &mockEmbedder{
		vectors: map[string][]float32{"closure": {1, 0}},
	}

	eng, _ := newTestEngine(t, embedder, chunk)

	results, err := eng.HybridSearch(ctx, "closure", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// semantic=1.0, keyword=1.0 → max(1.0, 1.0)×1.3
	assert.InDelta(t, 1.0*DefaultAgreementBoost, results[0].Score, 1e-6)
}

func TestHybridSearch_KeywordOnlyDuplicatesNotBoosted(t *testing.T) {
	// キーワード検索だけで発見された同一(videoID, startTime)の重複に一致ブーストは掛からない
	// （ブーストは両方式で発見されたチャンクのみが対象）
	ctx := context.Background()

	// クエリ"closure"のEmbedding[1,0]と直交させ、セマンティック側では発見されないようにする
	a := makeChunk("a", "v1", 0, "first take on closures", []string{"closure"}, []float32{0, 1})
	b := makeChunk("b", "v1", 0, "second take on closures", []string{"closure"}, []float32{0, 1})

	embedder := &mockEmbedder{}

	eng, _ := newTestEngine(t, embedder, a, b)

	results, err := eng.HybridSearch(ctx, "closure", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 0.0, results[0].SemanticScore)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-6)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6, "キーワードのみの重複にブーストが掛かっている")
}

func TestHybridSearch_DegradedResultsNotCached(t *testing.T) {
	// Embedding障害中の検索結果はクエリキャッシュへ固定されず、復旧後の再検索でセマンティック結果が返る
	ctx := context.Background()

	chunk := makeChunk("c1", "v1", 0, "generators and iterators in depth", nil, []float32{1, 0})
	embedder := &mockEmbedder{
		itemErrFor: map[string]error{"generators in depth": assert.AnError},
	}

	eng, _ := newTestEngine(t, embedder, chunk)

	degraded, err := eng.HybridSearch(ctx, "generators in depth", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, degraded)

	// Embeddingサービスの復旧
	delete(embedder.itemErrFor, "generators in depth")

	recovered, err := eng.HybridSearch(ctx, "generators in depth", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "c1", recovered[0].Chunk.ID)
}

func TestHybridSearch_DeduplicatesByVideoAndStartTime(t *testing.T) {
	// (videoID, startTime)が同じオーバーラップチャンクは1件に集約される
	ctx := context.Background()

	a := makeChunk("a", "v1", 30, "first overlapping chunk text", nil, []float32{1, 0})
	b := makeChunk("b", "v1", 30, "second overlapping chunk text", nil, []float32{0.9, 0.1})

	embedder := &mockEmbedder{
		vectors: map[string][]float32{"lexical scope": {1, 0}},
	}

	eng, _ := newTestEngine(t, embedder, a, b)

	results, err := eng.HybridSearch(ctx, "lexical scope", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID, "類似度の高い方が残る")

	seen := make(map[string]bool)
	for _, r := range results {
		key := dedupKey(r.Chunk)
		assert.False(t, seen[key], "同じ(videoID, startTime)の結果が重複している")
		seen[key] = true
	}
}

func TestHybridSearch_SecondCallUsesQueryCache(t *testing.T) {
	// 同一(query, limit)の2回目の検索はキャッシュから返り、Embedding呼び出しが増えない
	ctx := context.Background()

	chunk := makeChunk("c1", "v1", 0, "async await and the event loop", []string{"async"}, []float32{1, 0})
	embedder := &mockEmbedder{}

	eng, _ := newTestEngine(t, embedder, chunk)

	first, err := eng.HybridSearch(ctx, "how does async work", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	callsAfterFirst := embedder.totalCalls()

	second, err := eng.HybridSearch(ctx, "how does async work", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, embedder.totalCalls())
	assert.Equal(t, first, second)
}

func TestHybridSearch_FilterAppliesAfterCache(t *testing.T) {
	// 講座フィルタはキャッシュ済み結果にも適用される
	ctx := context.Background()

	js := makeChunk("js", "v1", 0, "javascript closures explained here", nil, []float32{1, 0})
	react := makeChunk("react", "v2", 0, "react hooks explained here", nil, []float32{1, 0})
	react.Metadata.Course = "react"

	embedder := &mockEmbedder{}
	eng, _ := newTestEngine(t, embedder, js, react)

	all, err := eng.HybridSearch(ctx, "explained", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := eng.HybridSearch(ctx, "explained", 10, searchdomain.SearchFilter{Course: "react"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "react", filtered[0].Chunk.Metadata.Course)
}

func TestSearch_EmbeddingFailureReturnsEmpty(t *testing.T) {
	// Embeddingサービスが完全に失敗した場合、セマンティック検索はエラーではなく空の結果を返す
	ctx := context.Background()

	chunk := makeChunk("c1", "v1", 0, "some indexed content here", nil, []float32{1, 0})
	embedder := &mockEmbedder{
		batchErr:   assert.AnError,
		itemErrFor: map[string]error{"unreachable query": assert.AnError},
	}

	eng, _ := newTestEngine(t, embedder, chunk)

	results, err := eng.Search(ctx, "unreachable query", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordSearch_NormalizedScore(t *testing.T) {
	// キーワードスコアはクエリ語数で正規化された[0,1]の値になる
	ctx := context.Background()

	chunk := makeChunk("c1", "v1", 0, "promises and callbacks", []string{"promise", "callback"}, nil)
	embedder := &mockEmbedder{}

	eng, _ := newTestEngine(t, embedder, chunk)

	// 2語中2語ヒット
	results, err := eng.KeywordSearch(ctx, "promise callback", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.NotEmpty(t, results[0].Reason)
}

func TestInvalidateCache(t *testing.T) {
	// InvalidateCache後もインデックス上のチャンクは検索できる
	ctx := context.Background()

	chunk := makeChunk("c1", "v1", 0, "modules and bundlers overview", nil, []float32{1, 0})
	embedder := &mockEmbedder{}

	eng, _ := newTestEngine(t, embedder, chunk)

	_, err := eng.HybridSearch(ctx, "modules overview", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)

	eng.InvalidateCache()

	results, err := eng.HybridSearch(ctx, "modules overview", 10, searchdomain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

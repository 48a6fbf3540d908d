package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	"github.com/jinford/lecture-rag/internal/module/search/adapter/index"
)

// mockEmbedder はテスト用のEmbedder実装
// vectors に登録されたテキストへは対応するベクトルを返し、それ以外は[1,0]を返す
type mockEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	batchCalls int
	itemCalls  int
	batchErr   error
	itemErrFor map[string]error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemCalls++
	if err, ok := m.itemErrFor[text]; ok {
		return nil, err
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vectorFor(text)
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimension() int { return 2 }

func (m *mockEmbedder) vectorFor(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	return []float32{1, 0}
}

func (m *mockEmbedder) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls + m.itemCalls
}

// newTestStore はテンポラリファイル上のFileStoreを生成する
func newTestStore(t *testing.T) *index.FileStore {
	t.Helper()
	store, err := index.NewFileStore(filepath.Join(t.TempDir(), "index.json"))
	require.NoError(t, err)
	return store
}

func TestEmbedTexts_CacheHitIssuesNoCalls(t *testing.T) {
	// キャッシュ済みテキストのEmbeddingはAPIを一度も呼ばずに解決される
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &mockEmbedder{}
	svc := NewEmbeddingService(store, embedder, nil)

	text := "a closure captures its surrounding scope"
	cached := []float32{0.3, 0.7}
	require.NoError(t, store.PutEmbedding(ctx, ingestdomain.HashContent(text), cached))

	vectors, err := svc.EmbedTexts(ctx, []string{text})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, cached, vectors[0])
	assert.Equal(t, 0, embedder.totalCalls())
}

func TestEmbedTexts_SecondCallIsCacheHit(t *testing.T) {
	// 同一テキストの2回目の呼び出しはキャッシュヒットとなり、追加のAPI呼び出しが発生しない
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &mockEmbedder{}
	svc := NewEmbeddingService(store, embedder, nil)

	texts := []string{"text one about closures"}

	_, err := svc.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	callsAfterFirst := embedder.totalCalls()

	_, err = svc.EmbedTexts(ctx, texts)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, embedder.totalCalls())
}

func TestEmbedTexts_PreservesOrder(t *testing.T) {
	// キャッシュヒットと新規取得が混在しても出力は入力順を保つ
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &mockEmbedder{
		vectors: map[string][]float32{
			"fresh one": {0.1, 0.9},
			"fresh two": {0.2, 0.8},
		},
	}
	svc := NewEmbeddingService(store, embedder, nil)

	cachedVec := []float32{0.5, 0.5}
	require.NoError(t, store.PutEmbedding(ctx, ingestdomain.HashContent("cached text"), cachedVec))

	vectors, err := svc.EmbedTexts(ctx, []string{"fresh one", "cached text", "fresh two"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0.1, 0.9}, vectors[0])
	assert.Equal(t, cachedVec, vectors[1])
	assert.Equal(t, []float32{0.2, 0.8}, vectors[2])
}

func TestEmbedTexts_BatchFailureFallsBackPerItem(t *testing.T) {
	// バッチ失敗時は1件ずつのフォールバックに切り替わり、不良な1件だけがnilになる
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &mockEmbedder{
		batchErr:   fmt.Errorf("batch rejected"),
		itemErrFor: map[string]error{"bad item": fmt.Errorf("bad input")},
	}
	svc := NewEmbeddingService(store, embedder, nil)

	vectors, err := svc.EmbedTexts(ctx, []string{"good item", "bad item"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotNil(t, vectors[0])
	assert.Nil(t, vectors[1])

	// 成功した分はキャッシュへ書き込まれ、失敗分は書き込まれない
	_, ok, err := store.GetEmbedding(ctx, ingestdomain.HashContent("good item"))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = store.GetEmbedding(ctx, ingestdomain.HashContent("bad item"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbedQuery_DoesNotPersistToCache(t *testing.T) {
	// 検索クエリのEmbeddingはコンテンツハッシュキャッシュへ書き込まれない
	// （キャッシュはインデックス対象コンテンツ専用で、クエリを書き込むと際限なく成長する）
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &mockEmbedder{}
	svc := NewEmbeddingService(store, embedder, nil)

	vector, err := svc.EmbedQuery(ctx, "how do closures work")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vector)

	_, ok, err := store.GetEmbedding(ctx, ingestdomain.HashContent("how do closures work"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbedQuery_Failure(t *testing.T) {
	// クエリのEmbedding取得に完全に失敗した場合はエラーを返す
	ctx := context.Background()
	store := newTestStore(t)
	embedder := &mockEmbedder{
		batchErr:   fmt.Errorf("service down"),
		itemErrFor: map[string]error{"query": fmt.Errorf("service down")},
	}
	svc := NewEmbeddingService(store, embedder, nil)

	_, err := svc.EmbedQuery(ctx, "query")
	assert.Error(t, err)
}

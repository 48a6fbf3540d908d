package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
)

func testChunk(id string) *ingestdomain.Chunk {
	return &ingestdomain.Chunk{
		ID:      id,
		Content: "closures capture the surrounding lexical scope",
		Metadata: ingestdomain.ChunkMetadata{
			Course:      "javascript",
			Section:     "section-1",
			VideoID:     "v1",
			Keywords:    []string{"closure", "scope"},
			Topics:      []string{"functions-and-scope"},
			ContentHash: ingestdomain.HashContent("closures capture the surrounding lexical scope"),
		},
	}
}

func TestFileStore_PersistenceRoundtrip(t *testing.T) {
	// Saveしたインデックスは新しいFileStoreでそのまま読み戻せる
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	chunk := testChunk("c1")
	require.NoError(t, store.PutChunks(ctx, []*ingestdomain.Chunk{chunk}))
	require.NoError(t, store.PutEmbedding(ctx, chunk.Metadata.ContentHash, []float32{0.1, 0.2}))
	require.NoError(t, store.Save(ctx))

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)

	got, ok, err := reloaded.GetChunk(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, chunk.Content, got.Content)

	vector, ok, err := reloaded.GetEmbedding(ctx, chunk.Metadata.ContentHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vector)

	ids, err := reloaded.KeywordLookup(ctx, "closure")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	// ファイルが存在しない場合はエラーではなく空の状態から開始する
	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFileStore_SchemaMismatchRebuilds(t *testing.T) {
	// スキーマバージョンが不一致のファイルは破棄され、空の状態から再構築される
	path := filepath.Join(t.TempDir(), "index.json")

	old, err := json.Marshal(map[string]any{
		"schemaVersion": SchemaVersion + 1,
		"chunks":        map[string]any{"stale": map[string]any{"id": "stale"}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, old, 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFileStore_KeywordLookupCaseInsensitive(t *testing.T) {
	// 転置インデックスのキーは小文字化され、検索も小文字化して行われる
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "index.json"))
	require.NoError(t, err)

	require.NoError(t, store.PutChunks(ctx, []*ingestdomain.Chunk{testChunk("c1")}))

	ids, err := store.KeywordLookup(ctx, "CLOSURE")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestFileStore_PutChunksNoDuplicateIndexEntries(t *testing.T) {
	// 同一チャンクを再登録しても転置インデックスにIDが重複登録されない
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "index.json"))
	require.NoError(t, err)

	chunk := testChunk("c1")
	require.NoError(t, store.PutChunks(ctx, []*ingestdomain.Chunk{chunk}))
	require.NoError(t, store.PutChunks(ctx, []*ingestdomain.Chunk{chunk}))

	ids, err := store.KeywordLookup(ctx, "closure")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

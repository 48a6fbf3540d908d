package domain

import (
	"context"
	"errors"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
)

var (
	// ErrCacheSchemaMismatch は永続化ファイルのスキーマバージョンが不一致の場合のエラー
	// 呼び出し側はインデックスを再構築する
	ErrCacheSchemaMismatch = errors.New("index cache schema mismatch")
)

// ChunkStore はチャンクインデックスの永続化インターフェース
// チャンク本体・キーワード転置インデックス・Embeddingキャッシュを保持する
type ChunkStore interface {
	// PutChunks はチャンクを登録する（同一IDは上書き）
	PutChunks(ctx context.Context, chunks []*ingestdomain.Chunk) error

	// GetChunk はIDでチャンクを取得する
	GetChunk(ctx context.Context, id string) (*ingestdomain.Chunk, bool, error)

	// AllChunks は登録済みの全チャンクを返す
	AllChunks(ctx context.Context) ([]*ingestdomain.Chunk, error)

	// KeywordLookup はキーワードに対応するチャンクIDのリストを返す
	KeywordLookup(ctx context.Context, keyword string) ([]string, error)

	// GetEmbedding はコンテンツハッシュに対応するEmbeddingを返す
	GetEmbedding(ctx context.Context, contentHash string) ([]float32, bool, error)

	// PutEmbedding はコンテンツハッシュに対応するEmbeddingを登録する
	PutEmbedding(ctx context.Context, contentHash string, vector []float32) error

	// Count は登録済みチャンク数を返す
	Count(ctx context.Context) (int, error)

	// Save は現在の状態を永続化する
	Save(ctx context.Context) error

	// Close は保持しているリソースを解放する
	Close()
}

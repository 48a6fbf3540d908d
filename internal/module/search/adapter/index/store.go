package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// SchemaVersion は永続化ファイルのスキーマバージョン
// 互換性のない変更を行った場合はインクリメントする（旧ファイルは破棄して再構築）
const SchemaVersion = 1

// fileIndex は永続化ファイルのフォーマット
type fileIndex struct {
	SchemaVersion int                             `json:"schemaVersion"`
	Chunks        map[string]*ingestdomain.Chunk  `json:"chunks"`
	KeywordIndex  map[string][]string             `json:"keywordIndex"`
	Embeddings    map[string][]float32            `json:"embeddings"`
	SavedAt       time.Time                       `json:"savedAt"`
}

// FileStore はJSONファイルにインデックス全体を永続化するChunkStore実装
// 単一プロセスからの利用を前提とし、並行書き込みはサポートしない
type FileStore struct {
	mu sync.RWMutex

	path         string
	chunks       map[string]*ingestdomain.Chunk
	keywordIndex map[string][]string  // keyword -> chunk IDs
	embeddings   map[string][]float32 // contentHash -> vector
}

// NewFileStore は新しいFileStoreを作成し、既存ファイルがあれば読み込みます
// ファイルが存在しない場合やスキーマバージョンが不一致の場合は空の状態から開始します
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:         path,
		chunks:       make(map[string]*ingestdomain.Chunk),
		keywordIndex: make(map[string][]string),
		embeddings:   make(map[string][]float32),
	}

	if err := s.load(); err != nil {
		// スキーマ不一致は再構築で対応（エラーにしない）
		if err == searchdomain.ErrCacheSchemaMismatch {
			return s, nil
		}
		return nil, err
	}

	return s, nil
}

// load は永続化ファイルを読み込みます（内部用）
func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		// ファイルがない場合はフル再構築（エラーではない）
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index file: %w", err)
	}

	var idx fileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("failed to decode index file: %w", err)
	}

	if idx.SchemaVersion != SchemaVersion {
		return searchdomain.ErrCacheSchemaMismatch
	}

	if idx.Chunks != nil {
		s.chunks = idx.Chunks
	}
	if idx.KeywordIndex != nil {
		s.keywordIndex = idx.KeywordIndex
	}
	if idx.Embeddings != nil {
		s.embeddings = idx.Embeddings
	}

	return nil
}

// PutChunks はチャンクを登録し、転置インデックスを更新します
func (s *FileStore) PutChunks(_ context.Context, chunks []*ingestdomain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
		s.indexChunk(chunk)
	}

	return nil
}

// indexChunk はチャンクのキーワード・トピック・講座・セクションを転置インデックスへ登録します
// 呼び出し側でロックを取得していることを前提とします
func (s *FileStore) indexChunk(chunk *ingestdomain.Chunk) {
	terms := make([]string, 0, len(chunk.Metadata.Keywords)+len(chunk.Metadata.Topics)+2)
	terms = append(terms, chunk.Metadata.Keywords...)
	terms = append(terms, chunk.Metadata.Topics...)
	terms = append(terms, chunk.Metadata.Course, chunk.Metadata.Section)

	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}

		// 同一チャンクの重複登録を防ぐ
		ids := s.keywordIndex[term]
		exists := false
		for _, id := range ids {
			if id == chunk.ID {
				exists = true
				break
			}
		}
		if !exists {
			s.keywordIndex[term] = append(ids, chunk.ID)
		}
	}
}

// GetChunk はIDでチャンクを取得します
func (s *FileStore) GetChunk(_ context.Context, id string) (*ingestdomain.Chunk, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunk, ok := s.chunks[id]
	return chunk, ok, nil
}

// AllChunks は登録済みの全チャンクを返します
func (s *FileStore) AllChunks(_ context.Context) ([]*ingestdomain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]*ingestdomain.Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// KeywordLookup はキーワードに対応するチャンクIDのリストを返します
func (s *FileStore) KeywordLookup(_ context.Context, keyword string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keywordIndex[strings.ToLower(keyword)], nil
}

// GetEmbedding はコンテンツハッシュに対応するEmbeddingを返します
func (s *FileStore) GetEmbedding(_ context.Context, contentHash string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vector, ok := s.embeddings[contentHash]
	return vector, ok, nil
}

// PutEmbedding はコンテンツハッシュに対応するEmbeddingを登録します
func (s *FileStore) PutEmbedding(_ context.Context, contentHash string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[contentHash] = vector
	return nil
}

// Count は登録済みチャンク数を返します
func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.chunks), nil
}

// Save は現在の状態をJSONファイルへ書き出します
func (s *FileStore) Save(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}

	idx := fileIndex{
		SchemaVersion: SchemaVersion,
		Chunks:        s.chunks,
		KeywordIndex:  s.keywordIndex,
		Embeddings:    s.embeddings,
		SavedAt:       time.Now(),
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}

	return nil
}

// Close はChunkStoreインターフェースを満たすためのno-opです
func (s *FileStore) Close() {}

// インターフェース実装の確認
var _ searchdomain.ChunkStore = (*FileStore)(nil)

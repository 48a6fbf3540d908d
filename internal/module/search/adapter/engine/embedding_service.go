package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

const (
	// DefaultBatchSize はEmbedding APIへ送る1バッチあたりのテキスト数
	DefaultBatchSize = 10

	// DefaultMaxConcurrentBatches は同時に実行するバッチ数の上限
	DefaultMaxConcurrentBatches = 3

	// itemRetryDelay はバッチ失敗後の1件ずつのフォールバック呼び出し間隔
	itemRetryDelay = 200 * time.Millisecond
)

// EmbeddingService はコンテンツハッシュキャッシュ付きのバッチEmbedding処理を提供します
// 同一テキストのEmbeddingコストは一度しか発生しません
type EmbeddingService struct {
	store    searchdomain.ChunkStore
	embedder llmdomain.Embedder
	logger   *slog.Logger

	batchSize     int
	maxConcurrent int
}

// NewEmbeddingService は新しいEmbeddingServiceを作成します
func NewEmbeddingService(store searchdomain.ChunkStore, embedder llmdomain.Embedder, logger *slog.Logger) *EmbeddingService {
	if store == nil {
		panic("engine.NewEmbeddingService: store is nil")
	}
	if embedder == nil {
		panic("engine.NewEmbeddingService: embedder is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EmbeddingService{
		store:         store,
		embedder:      embedder,
		logger:        logger,
		batchSize:     DefaultBatchSize,
		maxConcurrent: DefaultMaxConcurrentBatches,
	}
}

// EmbedTexts は複数テキストのEmbeddingを入力順を保って返します
// キャッシュ済みのテキストはAPIを呼ばずに解決され、新規分のみバッチで取得されます
// 個別テキストの失敗はnilベクトルとして記録され、他のテキストの処理を妨げません
func (s *EmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	// キャッシュ済みと未取得に分割
	var pendingIdx []int
	for i, text := range texts {
		hash := ingestdomain.HashContent(text)
		vector, ok, err := s.store.GetEmbedding(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedding cache: %w", err)
		}
		if ok {
			results[i] = vector
			continue
		}
		pendingIdx = append(pendingIdx, i)
	}

	if len(pendingIdx) == 0 {
		return results, nil
	}

	// 未取得分を固定サイズのバッチに分割
	var batches [][]int
	for start := 0; start < len(pendingIdx); start += s.batchSize {
		end := min(start+s.batchSize, len(pendingIdx))
		batches = append(batches, pendingIdx[start:end])
	}

	// バッチをウェーブ単位で並列実行（各ウェーブの完了を待ってから次へ進む）
	for wave := 0; wave < len(batches); wave += s.maxConcurrent {
		waveEnd := min(wave+s.maxConcurrent, len(batches))

		var wg sync.WaitGroup
		for _, batch := range batches[wave:waveEnd] {
			wg.Add(1)
			go func(batch []int) {
				defer wg.Done()
				s.embedBatch(ctx, texts, batch, results)
			}(batch)
		}
		wg.Wait()
	}

	// 取得できたEmbeddingをキャッシュへ書き込む
	for _, i := range pendingIdx {
		if results[i] == nil {
			continue
		}
		hash := ingestdomain.HashContent(texts[i])
		if err := s.store.PutEmbedding(ctx, hash, results[i]); err != nil {
			return nil, fmt.Errorf("failed to write embedding cache: %w", err)
		}
	}

	return results, nil
}

// embedBatch は1バッチ分のEmbeddingを取得してresultsへ書き込みます
// バッチ全体が失敗した場合は1件ずつのフォールバックに切り替えます
func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string, batch []int, results [][]float32) {
	input := make([]string, len(batch))
	for i, idx := range batch {
		input[i] = texts[idx]
	}

	vectors, err := s.embedder.BatchEmbed(ctx, input)
	if err == nil && len(vectors) == len(batch) {
		for i, idx := range batch {
			results[idx] = vectors[i]
		}
		return
	}

	s.logger.Warn("batch embedding failed, falling back to per-item calls",
		"batchSize", len(batch),
		"error", err,
	)

	// バッチ失敗時は1件ずつ取得（不良な1件が無関係なチャンクを巻き込まないように）
	for _, idx := range batch {
		select {
		case <-ctx.Done():
			return
		case <-time.After(itemRetryDelay):
		}

		vector, itemErr := s.embedder.Embed(ctx, texts[idx])
		if itemErr != nil {
			s.logger.Warn("embedding failed for item, skipping",
				"index", idx,
				"error", itemErr,
			)
			continue
		}
		results[idx] = vector
	}
}

// EmbedQuery は検索クエリ1件のEmbeddingを取得します
// クエリは任意入力で際限なく増えるため、コンテンツハッシュキャッシュには書き込みません
// （繰り返しクエリはエンジン側のクエリキャッシュが吸収する）
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}

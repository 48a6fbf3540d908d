package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/jinford/lecture-rag/internal/module/ingestion/adapter/chunker"
	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	"github.com/jinford/lecture-rag/internal/module/search/adapter/engine"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// IngestService は文字起こしファイルの取り込みユースケースを提供します
type IngestService struct {
	builder    *chunker.Builder
	embeddings *engine.EmbeddingService
	store      searchdomain.ChunkStore
	logger     *slog.Logger
}

// NewIngestService は新しいIngestServiceを作成します
func NewIngestService(builder *chunker.Builder, embeddings *engine.EmbeddingService, store searchdomain.ChunkStore, logger *slog.Logger) *IngestService {
	if builder == nil {
		panic("application.NewIngestService: builder is nil")
	}
	if embeddings == nil {
		panic("application.NewIngestService: embeddings is nil")
	}
	if store == nil {
		panic("application.NewIngestService: store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestService{
		builder:    builder,
		embeddings: embeddings,
		store:      store,
		logger:     logger,
	}
}

// IngestResult は取り込み実行の集計結果
type IngestResult struct {
	RunID        uuid.UUID
	FilesTotal   int
	FilesFailed  int
	ChunksStored int
}

// IngestFiles はSegmenter出力のJSONファイル群を取り込みます
// ファイル単位の失敗はログに記録してスキップし、取り込み全体は継続します
func (s *IngestService) IngestFiles(ctx context.Context, paths []string) (*IngestResult, error) {
	result := &IngestResult{
		RunID:      uuid.New(),
		FilesTotal: len(paths),
	}

	s.logger.Info("starting ingestion run",
		"runID", result.RunID.String(),
		"files", len(paths),
	)

	for _, path := range paths {
		stored, err := s.ingestFile(ctx, path)
		if err != nil {
			// 不良ファイルは取り込み全体を止めない
			s.logger.Error("failed to ingest file, skipping",
				"path", path,
				"error", err,
			)
			result.FilesFailed++
			continue
		}
		result.ChunksStored += stored
	}

	if err := s.store.Save(ctx); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	s.logger.Info("ingestion run completed",
		"runID", result.RunID.String(),
		"chunksStored", result.ChunksStored,
		"filesFailed", result.FilesFailed,
	)

	return result, nil
}

// ingestFile は1ファイル（動画1本分）を取り込み、保存したチャンク数を返します
func (s *IngestService) ingestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read transcript file: %w", err)
	}

	var transcript ingestdomain.VideoTranscript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return 0, fmt.Errorf("failed to decode transcript: %w", err)
	}

	if transcript.VideoID == "" {
		return 0, fmt.Errorf("transcript has no videoId")
	}

	// セグメントにvideoIdが未設定の場合はファイルの値を補完
	for i := range transcript.Segments {
		if transcript.Segments[i].VideoID == "" {
			transcript.Segments[i].VideoID = transcript.VideoID
		}
	}

	// チャンク構築 + オーバーラップの第2パス
	chunks := s.builder.Build(transcript)
	if len(chunks) == 0 {
		s.logger.Warn("no chunks produced for file", "path", path)
		return 0, nil
	}
	s.builder.MarkOverlaps(chunks)

	// バッチEmbedding（キャッシュ経由、同一本文は1回のみ課金）
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.embeddings.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	embedded := 0
	for i, chunk := range chunks {
		if vectors[i] == nil {
			// 個別失敗はEmbeddingなしで登録（キーワード検索では依然ヒットする）
			s.logger.Warn("chunk stored without embedding", "chunkID", chunk.ID)
			continue
		}
		chunk.Embedding = vectors[i]
		embedded++
	}

	if err := s.store.PutChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	s.logger.Info("file ingested",
		"path", path,
		"videoID", transcript.VideoID,
		"chunks", len(chunks),
		"embedded", embedded,
	)

	return len(chunks), nil
}

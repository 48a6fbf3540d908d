package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// ChunkStore はPostgres + pgvectorによるChunkStore実装です
// ファイルバックエンドの代替として、複数コーパスの常駐運用時に使用します
type ChunkStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewChunkStore はPostgresへ接続し、必要なテーブルを初期化します
func NewChunkStore(ctx context.Context, databaseURL string, dimension int) (*ChunkStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// pgvector型をコネクションごとに登録
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &ChunkStore{
		pool:      pool,
		dimension: dimension,
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// initialize はテーブルとインデックスを作成します
func (s *ChunkStore) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			course TEXT NOT NULL,
			section TEXT NOT NULL,
			video_id TEXT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			duration DOUBLE PRECISION NOT NULL,
			topics TEXT[] NOT NULL DEFAULT '{}',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			chunk_index INTEGER NOT NULL,
			overlap_with TEXT[] NOT NULL DEFAULT '{}',
			quality_score DOUBLE PRECISION NOT NULL,
			content_hash TEXT NOT NULL,
			embedding vector(%d)
		)
	`, s.dimension)); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS embeddings (
			content_hash TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)
	`, s.dimension)); err != nil {
		return fmt.Errorf("failed to create embeddings table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_course_idx ON chunks (course);
		CREATE INDEX IF NOT EXISTS chunks_keywords_idx ON chunks USING GIN (keywords);
		CREATE INDEX IF NOT EXISTS chunks_topics_idx ON chunks USING GIN (topics)
	`); err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}

	return nil
}

// PutChunks はチャンクを登録します（同一IDは上書き）
func (s *ChunkStore) PutChunks(ctx context.Context, chunks []*ingestdomain.Chunk) error {
	for _, chunk := range chunks {
		var embedding any
		if len(chunk.Embedding) > 0 {
			embedding = pgvector.NewVector(chunk.Embedding)
		}

		if _, err := s.pool.Exec(ctx, `
			INSERT INTO chunks (
				id, content, course, section, video_id,
				start_time, end_time, duration, topics, keywords,
				chunk_index, overlap_with, quality_score, content_hash, embedding
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				topics = EXCLUDED.topics,
				keywords = EXCLUDED.keywords,
				overlap_with = EXCLUDED.overlap_with,
				quality_score = EXCLUDED.quality_score,
				content_hash = EXCLUDED.content_hash,
				embedding = EXCLUDED.embedding
		`,
			chunk.ID,
			chunk.Content,
			chunk.Metadata.Course,
			chunk.Metadata.Section,
			chunk.Metadata.VideoID,
			chunk.Metadata.StartTime,
			chunk.Metadata.EndTime,
			chunk.Metadata.Duration,
			chunk.Metadata.Topics,
			chunk.Metadata.Keywords,
			chunk.Metadata.ChunkIndex,
			chunk.Metadata.OverlapWith,
			chunk.Metadata.QualityScore,
			chunk.Metadata.ContentHash,
			embedding,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	return nil
}

// GetChunk はIDでチャンクを取得します
func (s *ChunkStore) GetChunk(ctx context.Context, id string) (*ingestdomain.Chunk, bool, error) {
	row := s.pool.QueryRow(ctx, selectChunkSQL+" WHERE id = $1", id)

	chunk, err := scanChunk(row)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get chunk: %w", err)
	}

	return chunk, true, nil
}

// AllChunks は登録済みの全チャンクを返します
func (s *ChunkStore) AllChunks(ctx context.Context) ([]*ingestdomain.Chunk, error) {
	rows, err := s.pool.Query(ctx, selectChunkSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*ingestdomain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// KeywordLookup はキーワード・トピック・講座・セクションのいずれかに一致するチャンクIDを返します
func (s *ChunkStore) KeywordLookup(ctx context.Context, keyword string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM chunks
		WHERE $1 = ANY(keywords) OR $1 = ANY(topics) OR course = $1 OR section = $1
	`, keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup keyword: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetEmbedding はコンテンツハッシュに対応するEmbeddingを返します
func (s *ChunkStore) GetEmbedding(ctx context.Context, contentHash string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		"SELECT embedding FROM embeddings WHERE content_hash = $1", contentHash,
	).Scan(&vec)

	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding: %w", err)
	}

	return vec.Slice(), true, nil
}

// PutEmbedding はコンテンツハッシュに対応するEmbeddingを登録します
func (s *ChunkStore) PutEmbedding(ctx context.Context, contentHash string, vector []float32) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (content_hash, embedding)
		VALUES ($1, $2)
		ON CONFLICT (content_hash) DO NOTHING
	`, contentHash, pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("failed to put embedding: %w", err)
	}

	return nil
}

// Count は登録済みチャンク数を返します
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Save はChunkStoreインターフェースを満たすためのno-opです（書き込みは即時反映）
func (s *ChunkStore) Save(_ context.Context) error {
	return nil
}

// Close はコネクションプールを閉じます
func (s *ChunkStore) Close() {
	s.pool.Close()
}

const selectChunkSQL = `
	SELECT id, content, course, section, video_id,
	       start_time, end_time, duration, topics, keywords,
	       chunk_index, overlap_with, quality_score, content_hash, embedding
	FROM chunks`

// scanChunk は1行をChunkへ変換します
func scanChunk(row pgx.Row) (*ingestdomain.Chunk, error) {
	var chunk ingestdomain.Chunk
	var embedding *pgvector.Vector

	if err := row.Scan(
		&chunk.ID,
		&chunk.Content,
		&chunk.Metadata.Course,
		&chunk.Metadata.Section,
		&chunk.Metadata.VideoID,
		&chunk.Metadata.StartTime,
		&chunk.Metadata.EndTime,
		&chunk.Metadata.Duration,
		&chunk.Metadata.Topics,
		&chunk.Metadata.Keywords,
		&chunk.Metadata.ChunkIndex,
		&chunk.Metadata.OverlapWith,
		&chunk.Metadata.QualityScore,
		&chunk.Metadata.ContentHash,
		&embedding,
	); err != nil {
		return nil, err
	}

	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}

	return &chunk, nil
}

// インターフェース実装の確認
var _ searchdomain.ChunkStore = (*ChunkStore)(nil)

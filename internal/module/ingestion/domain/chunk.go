package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Chunk は検索の最小単位となるテキストチャンクを表す
// 一度インデックスに登録された後は OverlapWith を除いて変更されない
type Chunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Embedding []float32     `json:"embedding,omitempty"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// ChunkMetadata はチャンクの検索用メタデータを表す
type ChunkMetadata struct {
	Course       string   `json:"course"`
	Section      string   `json:"section"`
	VideoID      string   `json:"videoId"`
	StartTime    float64  `json:"startTime"`
	EndTime      float64  `json:"endTime"`
	Duration     float64  `json:"duration"`
	Topics       []string `json:"topics"`
	Keywords     []string `json:"keywords"`
	ChunkIndex   int      `json:"chunkIndex"`
	OverlapWith  []string `json:"overlapWith"`  // 時間的に隣接するチャンクのIDリスト（所有関係なし）
	QualityScore float64  `json:"qualityScore"` // [0,1] ランキングのタイブレーカーにのみ使用
	ContentHash  string   `json:"contentHash"`  // Embeddingキャッシュのキー
}

// HashContent はチャンク本文から決定的なコンテンツハッシュを計算する
// 本文が同一の2つのチャンクは同じハッシュ（= 同じEmbedding）を共有する
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

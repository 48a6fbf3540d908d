package domain

import (
	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
)

// SearchResult は検索結果1件を表す
type SearchResult struct {
	Chunk *ingestdomain.Chunk `json:"chunk"`

	// Score は融合後の関連度スコア
	Score float64 `json:"score"`

	// SemanticScore / KeywordScore は各方式の素点（該当方式で見つかった場合のみ非ゼロ）
	SemanticScore float64 `json:"semanticScore"`
	KeywordScore  float64 `json:"keywordScore"`

	// Reason は人間向けの根拠説明（ランキングには使用しない）
	Reason string `json:"reason"`
}

// SearchFilter は検索の絞り込み条件を表す
type SearchFilter struct {
	Course  string
	Section string
}

// Matches はチャンクがフィルタ条件を満たすかどうかを判定する
func (f SearchFilter) Matches(chunk *ingestdomain.Chunk) bool {
	if f.Course != "" && chunk.Metadata.Course != f.Course {
		return false
	}
	if f.Section != "" && chunk.Metadata.Section != f.Section {
		return false
	}
	return true
}

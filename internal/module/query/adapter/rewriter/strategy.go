package rewriter

import (
	"context"

	querydomain "github.com/jinford/lecture-rag/internal/module/query/domain"
)

// Context はリライト戦略へ渡される実行時コンテキスト
type Context struct {
	Course  string
	Intent  querydomain.QueryIntent
	Level   querydomain.Difficulty
	History []querydomain.Message
}

// Strategy はクエリリライト戦略の共通インターフェース
// 各戦略は独立して差し替え可能で、1つの失敗が他の戦略を妨げてはならない
type Strategy interface {
	// Name は戦略の識別名を返します
	Name() string

	// Run はクエリからリライト候補を生成します（該当しない場合は空スライス）
	Run(ctx context.Context, query string, rc Context) ([]string, error)
}

package domain

// RewriteResult はマルチ戦略リライトの結果を表す
// 会話履歴に依存するためターン固有であり、セッションを跨いでキャッシュされない
type RewriteResult struct {
	Original          string      `json:"original"`
	RewrittenVariants []string    `json:"rewrittenVariants"`
	AppliedStrategies []string    `json:"appliedStrategies"`
	Intent            QueryIntent `json:"intent"`
	Level             Difficulty  `json:"level"`
	RankedBest        []string    `json:"rankedBest"`
}

package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	decomposedomain "github.com/jinford/lecture-rag/internal/module/decompose/domain"
	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
)

const (
	// complexityWordThreshold は複雑クエリ判定の語数しきい値
	complexityWordThreshold = 10

	// decomposeTemperature は分解生成用のランダム性
	decomposeTemperature = 0.3
)

// complexityIndicators は複雑クエリを示す表現
var complexityIndicators = []string{
	"compare", "versus", " vs ", "difference between",
	"step by step", "step-by-step", "pros and cons",
	"and also", "as well as", "both",
}

// Decomposer は複雑クエリを依存関係付きの下位質問へ分解します
type Decomposer struct {
	client llmdomain.Client
	logger *slog.Logger
}

// NewDecomposer は新しいDecomposerを作成します
func NewDecomposer(client llmdomain.Client, logger *slog.Logger) *Decomposer {
	if client == nil {
		panic("decomposer.NewDecomposer: client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{client: client, logger: logger}
}

// NeedsDecomposition は複雑さの判定ゲートです
// 語数がしきい値を超え、かつ複雑さ指標の表現を含むか「?」が2個以上の場合に分解します
func (d *Decomposer) NeedsDecomposition(query string) bool {
	words := strings.Fields(query)
	if len(words) <= complexityWordThreshold {
		return false
	}

	lower := strings.ToLower(query)
	hasIndicator := false
	for _, indicator := range complexityIndicators {
		if strings.Contains(lower, indicator) {
			hasIndicator = true
			break
		}
	}

	multipleQuestions := strings.Count(query, "?") > 1

	return hasIndicator || multipleQuestions
}

// Decompose はクエリを下位質問の集合へ分解します
// 単純なクエリは元クエリ1件の終端状態を返します
// LLM失敗時はクエリ形状に応じたヒューリスティクスへフォールバックします
func (d *Decomposer) Decompose(ctx context.Context, query string) (*decomposedomain.SubqueryDecomposition, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	if !d.NeedsDecomposition(query) {
		return decomposedomain.NewSimpleDecomposition(query), nil
	}

	dec := d.decomposeWithLLM(ctx, query)
	if dec == nil {
		dec = d.fallbackDecompose(query)
	}

	return dec, nil
}

// decomposePayload はLLM分解レスポンスのJSON形式
type decomposePayload struct {
	Subqueries     []string         `json:"subqueries"`
	ExecutionOrder []int            `json:"executionOrder"`
	Dependencies   map[string][]int `json:"dependencies"`
	Complexity     string           `json:"complexity"`
}

// decomposeWithLLM はLLMで分解を試みます（失敗時はnil）
func (d *Decomposer) decomposeWithLLM(ctx context.Context, query string) *decomposedomain.SubqueryDecomposition {
	resp, err := d.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:         buildDecomposePrompt(query),
		Temperature:    decomposeTemperature,
		MaxTokens:      512,
		ResponseFormat: "json",
	})
	if err != nil {
		d.logger.Warn("decomposition LLM call failed, using heuristic fallback", "error", err)
		return nil
	}

	var payload decomposePayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		d.logger.Warn("decomposition response parse failed, using heuristic fallback", "error", err)
		return nil
	}

	if len(payload.Subqueries) == 0 {
		d.logger.Warn("decomposition response contained no subqueries, using heuristic fallback")
		return nil
	}

	// JSONのキーは文字列なのでintへ変換する（不正キーは捨てる）
	deps := make(map[int][]int, len(payload.Dependencies))
	for key, value := range payload.Dependencies {
		var idx int
		if _, err := fmt.Sscanf(key, "%d", &idx); err != nil {
			continue
		}
		deps[idx] = value
	}

	dec, err := decomposedomain.NewSubqueryDecomposition(
		payload.Subqueries,
		payload.ExecutionOrder,
		deps,
		decomposedomain.Complexity(payload.Complexity),
	)
	if err != nil {
		d.logger.Warn("decomposition validation failed, using heuristic fallback", "error", err)
		return nil
	}

	return dec
}

// fallbackDecompose はクエリ形状のパターンマッチによる決定的な分解です
func (d *Decomposer) fallbackDecompose(query string) *decomposedomain.SubqueryDecomposition {
	lower := strings.ToLower(query)

	var subqueries []string
	switch {
	case strings.Contains(lower, "implement") || strings.Contains(lower, "build"):
		subqueries = []string{
			fmt.Sprintf("What concepts are needed for: %s", query),
			fmt.Sprintf("How to implement: %s", query),
			fmt.Sprintf("What are the best practices for: %s", query),
		}
	case strings.Contains(lower, "difference") || strings.Contains(lower, "compare"):
		subqueries = comparisonSubqueries(query, lower)
	default:
		subqueries = []string{
			fmt.Sprintf("What are the basics of: %s", query),
			fmt.Sprintf("How does this work in practice: %s", query),
			fmt.Sprintf("What are examples of: %s", query),
		}
	}

	dec, err := decomposedomain.NewSubqueryDecomposition(
		subqueries,
		nil,
		map[int][]int{1: {0}, 2: {0, 1}},
		decomposedomain.ComplexityModerate,
	)
	if err != nil {
		// 固定形状の分解が検証に落ちることはないが、万一の場合は終端状態へ縮退する
		d.logger.Error("heuristic decomposition failed validation", "error", err)
		return decomposedomain.NewSimpleDecomposition(query)
	}

	return dec
}

// comparisonSubqueries は比較クエリを「XとはY」2件+比較1件へ分割します
func comparisonSubqueries(query, lower string) []string {
	for _, sep := range []string{" vs ", " versus ", " and "} {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			continue
		}

		left := strings.TrimSpace(trimComparisonNoise(query[:idx]))
		right := strings.TrimSpace(strings.Trim(query[idx+len(sep):], " ?"))
		if left == "" || right == "" {
			break
		}

		return []string{
			fmt.Sprintf("What is %s", left),
			fmt.Sprintf("What is %s", right),
			fmt.Sprintf("What is the difference between %s and %s", left, right),
		}
	}

	return []string{
		fmt.Sprintf("What are the basics of: %s", query),
		fmt.Sprintf("How does this work in practice: %s", query),
		fmt.Sprintf("What are examples of: %s", query),
	}
}

// trimComparisonNoise は比較対象の前置き表現を取り除きます
func trimComparisonNoise(s string) string {
	lower := strings.ToLower(s)
	for _, prefix := range []string{
		"what is the difference between ",
		"what's the difference between ",
		"compare ",
		"difference between ",
	} {
		if idx := strings.Index(lower, prefix); idx >= 0 {
			return s[idx+len(prefix):]
		}
	}
	return s
}

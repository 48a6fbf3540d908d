package rewriter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	"github.com/jinford/lecture-rag/internal/module/query/adapter/optimizer"
	querydomain "github.com/jinford/lecture-rag/internal/module/query/domain"
)

const (
	// classifyTemperature は意図・難易度検出用の低いランダム性
	classifyTemperature = 0.2

	// rankTemperature は候補ランキング用のランダム性
	rankTemperature = 0.0

	// maxRankedBest はランキング結果として返す候補数の上限
	maxRankedBest = 5
)

// Rewriter は複数のリライト戦略を実行し、候補を重複排除・ランキングします
// 会話履歴に依存するため、結果はターンを跨いでキャッシュされません
type Rewriter struct {
	client     llmdomain.Client
	strategies []Strategy
	logger     *slog.Logger
}

// NewRewriter は既定の6戦略を登録したRewriterを作成します
func NewRewriter(client llmdomain.Client, logger *slog.Logger) *Rewriter {
	if client == nil {
		panic("rewriter.NewRewriter: client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Rewriter{
		client: client,
		strategies: []Strategy{
			NewSemanticExpansion(client),
			NewTermInjection(),
			NewContextualRefinement(client),
			NewSynonymSubstitution(),
			NewQuestionDecomposition(client),
			NewContextFusion(),
		},
		logger: logger,
	}
}

// Rewrite はクエリのリライトを実行します
// 個々の戦略の失敗はログに記録してスキップし、他の戦略の実行を妨げません
func (r *Rewriter) Rewrite(ctx context.Context, query, course string, history []querydomain.Message) (*querydomain.RewriteResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	intent := r.DetectIntent(ctx, query)
	level := r.AssessLevel(ctx, query)

	rc := Context{
		Course:  course,
		Intent:  intent,
		Level:   level,
		History: history,
	}

	var variants []string
	var applied []string
	for _, strategy := range r.strategies {
		got, err := strategy.Run(ctx, query, rc)
		if err != nil {
			r.logger.Warn("rewrite strategy failed, skipping",
				"strategy", strategy.Name(), "error", err)
			continue
		}
		if len(got) == 0 {
			continue
		}
		variants = append(variants, got...)
		applied = append(applied, strategy.Name())
	}

	unique := dedupeVariants(query, variants)
	ranked := r.rankVariants(ctx, query, intent, level, unique)

	return &querydomain.RewriteResult{
		Original:          query,
		RewrittenVariants: unique,
		AppliedStrategies: applied,
		Intent:            intent,
		Level:             level,
		RankedBest:        ranked,
	}, nil
}

// intentPayload は意図検出レスポンスのJSON形式
type intentPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// DetectIntent はクエリの意図を検出します
// LLM失敗時はルールベースのフォールバックで必ず有効な分類を返します
func (r *Rewriter) DetectIntent(ctx context.Context, query string) querydomain.QueryIntent {
	normalized := strings.ToLower(query)

	resp, err := r.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:         buildIntentPrompt(query),
		Temperature:    classifyTemperature,
		MaxTokens:      128,
		ResponseFormat: "json",
	})
	if err != nil {
		r.logger.Warn("intent detection LLM call failed, using rule-based fallback", "error", err)
		return fallbackIntent(normalized)
	}

	var payload intentPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		r.logger.Warn("intent detection response parse failed, using rule-based fallback", "error", err)
		return fallbackIntent(normalized)
	}

	intent := querydomain.IntentType(payload.Intent)
	if !intent.Valid() {
		return fallbackIntent(normalized)
	}

	confidence := payload.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.8
	}

	return querydomain.QueryIntent{Type: intent, Confidence: confidence}
}

// fallbackIntent はルールベースの意図分類結果を返します
func fallbackIntent(normalized string) querydomain.QueryIntent {
	return querydomain.QueryIntent{
		Type:       optimizer.ClassifyIntent(normalized),
		Confidence: 0.5,
	}
}

// levelPayload は難易度検出レスポンスのJSON形式
type levelPayload struct {
	Level string `json:"level"`
}

// AssessLevel はクエリの技術的難易度を判定します
// LLM失敗時はルールベースのフォールバックで必ず有効な難易度を返します
func (r *Rewriter) AssessLevel(ctx context.Context, query string) querydomain.Difficulty {
	normalized := strings.ToLower(query)

	resp, err := r.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:         buildLevelPrompt(query),
		Temperature:    classifyTemperature,
		MaxTokens:      64,
		ResponseFormat: "json",
	})
	if err != nil {
		r.logger.Warn("level assessment LLM call failed, using rule-based fallback", "error", err)
		return optimizer.ClassifyDifficulty(normalized)
	}

	var payload levelPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		r.logger.Warn("level assessment response parse failed, using rule-based fallback", "error", err)
		return optimizer.ClassifyDifficulty(normalized)
	}

	level := querydomain.Difficulty(payload.Level)
	if !level.Valid() {
		return optimizer.ClassifyDifficulty(normalized)
	}

	return level
}

// rankPayload はランキングレスポンスのJSON形式（候補リストへのインデックス順）
type rankPayload struct {
	Order []int `json:"order"`
}

// rankVariants は候補をLLMでランキングします
// パース失敗時は文字列長の降順（長いほど具体的とみなす）へフォールバックします
func (r *Rewriter) rankVariants(ctx context.Context, query string, intent querydomain.QueryIntent, level querydomain.Difficulty, variants []string) []string {
	if len(variants) == 0 {
		return []string{}
	}
	if len(variants) == 1 {
		return []string{variants[0]}
	}

	ranked := r.rankWithLLM(ctx, query, intent, level, variants)
	if ranked == nil {
		ranked = rankByLength(variants)
	}

	if len(ranked) > maxRankedBest {
		ranked = ranked[:maxRankedBest]
	}

	return ranked
}

// rankWithLLM はLLMによるインデックス順ランキングを試みます（失敗時はnil）
func (r *Rewriter) rankWithLLM(ctx context.Context, query string, intent querydomain.QueryIntent, level querydomain.Difficulty, variants []string) []string {
	resp, err := r.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:         buildRankPrompt(query, intent, level, variants),
		Temperature:    rankTemperature,
		MaxTokens:      128,
		ResponseFormat: "json",
	})
	if err != nil {
		r.logger.Warn("variant ranking LLM call failed, using length-based fallback", "error", err)
		return nil
	}

	var payload rankPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		r.logger.Warn("variant ranking response parse failed, using length-based fallback", "error", err)
		return nil
	}

	seen := make(map[int]bool, len(payload.Order))
	ranked := make([]string, 0, len(variants))
	for _, idx := range payload.Order {
		if idx < 0 || idx >= len(variants) || seen[idx] {
			continue
		}
		seen[idx] = true
		ranked = append(ranked, variants[idx])
	}

	if len(ranked) == 0 {
		return nil
	}

	// LLMが言及しなかった候補は末尾に元の順序で補完する
	for i, v := range variants {
		if !seen[i] {
			ranked = append(ranked, v)
		}
	}

	return ranked
}

// rankByLength は文字列長の降順でランキングします
func rankByLength(variants []string) []string {
	ranked := make([]string, len(variants))
	copy(ranked, variants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i]) > len(ranked[j])
	})
	return ranked
}

// dedupeVariants は元クエリとの重複および候補間の重複を大文字小文字を無視して除去します
func dedupeVariants(original string, variants []string) []string {
	seen := map[string]bool{
		strings.ToLower(strings.TrimSpace(original)): true,
	}

	unique := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, v)
	}

	return unique
}

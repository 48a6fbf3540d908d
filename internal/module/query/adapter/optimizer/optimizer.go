package optimizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	querydomain "github.com/jinford/lecture-rag/internal/module/query/domain"
	"github.com/jinford/lecture-rag/internal/shared/vocab"
)

const (
	// DefaultCacheSize は最適化結果キャッシュのデフォルト容量
	DefaultCacheSize = 500

	// completionTemperature は分類タスク用の低いランダム性
	completionTemperature = 0.2

	// maxExpansions はLLMに要求する拡張クエリ数の上限
	maxExpansions = 5
)

// Optimizer はクエリの意図・難易度・講座帰属を分類し、検索に適した形へ拡張します
// 結果は正規化クエリのハッシュをキーとしてLRUキャッシュされます
type Optimizer struct {
	client llmdomain.Client
	cache  *lru.Cache[string, *querydomain.OptimizedQuery]
	logger *slog.Logger
}

// NewOptimizer は新しいOptimizerを作成します
func NewOptimizer(client llmdomain.Client, cacheSize int, logger *slog.Logger) *Optimizer {
	if client == nil {
		panic("optimizer.NewOptimizer: client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, _ := lru.New[string, *querydomain.OptimizedQuery](cacheSize)

	return &Optimizer{
		client: client,
		cache:  cache,
		logger: logger,
	}
}

// optimizePayload はLLMレスポンスのJSON形式
type optimizePayload struct {
	ExpandedQueries  []string `json:"expandedQueries"`
	TechnicalTerms   []string `json:"technicalTerms"`
	Intent           string   `json:"intent"`
	Difficulty       string   `json:"difficulty"`
	CoursePreference string   `json:"coursePreference"`
	SearchStrategy   string   `json:"searchStrategy"`
}

// Optimize はクエリを解析してOptimizedQueryを返します
// LLM呼び出しの失敗やレスポンス不正時はルールベースのフォールバックで分類します
func (o *Optimizer) Optimize(ctx context.Context, query string) (*querydomain.OptimizedQuery, error) {
	normalized := normalize(query)
	if normalized == "" {
		return nil, fmt.Errorf("query is required")
	}

	key := cacheKey(normalized)
	if cached, ok := o.cache.Get(key); ok {
		return cached, nil
	}

	optimized := o.optimizeWithLLM(ctx, query, normalized)
	if optimized == nil {
		optimized = o.fallbackOptimize(query, normalized)
	}

	o.cache.Add(key, optimized)

	return optimized, nil
}

// optimizeWithLLM はLLMで1回の分類・拡張を試みます（失敗時はnil）
func (o *Optimizer) optimizeWithLLM(ctx context.Context, query, normalized string) *querydomain.OptimizedQuery {
	resp, err := o.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:         buildOptimizePrompt(query),
		Temperature:    completionTemperature,
		MaxTokens:      512,
		ResponseFormat: "json",
	})
	if err != nil {
		o.logger.Warn("query optimization LLM call failed, using rule-based fallback", "error", err)
		return nil
	}

	var payload optimizePayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		o.logger.Warn("query optimization response parse failed, using rule-based fallback", "error", err)
		return nil
	}

	// 各フィールドを検証し、不正値はフォールバックの分類で補完する
	fallback := o.fallbackOptimize(query, normalized)

	optimized := &querydomain.OptimizedQuery{
		Original:         query,
		Expanded:         sanitizeStrings(payload.ExpandedQueries, maxExpansions),
		TechnicalTerms:   sanitizeStrings(payload.TechnicalTerms, 10),
		Intent:           querydomain.IntentType(payload.Intent),
		Difficulty:       querydomain.Difficulty(payload.Difficulty),
		CoursePreference: strings.ToLower(strings.TrimSpace(payload.CoursePreference)),
		SearchStrategy:   querydomain.SearchStrategy(payload.SearchStrategy),
	}

	if !optimized.Intent.Valid() {
		optimized.Intent = fallback.Intent
	}
	if !optimized.Difficulty.Valid() {
		optimized.Difficulty = fallback.Difficulty
	}
	if !optimized.SearchStrategy.Valid() {
		optimized.SearchStrategy = fallback.SearchStrategy
	}
	if !validCoursePreference(optimized.CoursePreference) {
		optimized.CoursePreference = fallback.CoursePreference
	}

	return optimized
}

// fallbackOptimize は決定的なルールベース分類を行います
// LLMが利用できない場合でも必ず有効なOptimizedQueryを返します
func (o *Optimizer) fallbackOptimize(query, normalized string) *querydomain.OptimizedQuery {
	return &querydomain.OptimizedQuery{
		Original:         query,
		Expanded:         []string{},
		TechnicalTerms:   extractTechnicalTerms(normalized),
		Intent:           ClassifyIntent(normalized),
		Difficulty:       ClassifyDifficulty(normalized),
		CoursePreference: vocab.GuessCourse(normalized),
		// フォールバック時は常にhybrid（コストは高いが取り漏らしが最も少ない）
		SearchStrategy: querydomain.StrategyHybrid,
	}
}

// ClassifyIntent は部分文字列ヒューリスティクスで意図を分類します
func ClassifyIntent(normalized string) querydomain.IntentType {
	switch {
	case strings.Contains(normalized, "how to") || strings.Contains(normalized, "how do i"):
		return querydomain.IntentImplementation
	case strings.Contains(normalized, "what is") || strings.Contains(normalized, "what are"):
		return querydomain.IntentConcept
	case strings.Contains(normalized, "error") || strings.Contains(normalized, "debug") || strings.Contains(normalized, "fix"):
		return querydomain.IntentDebugging
	case strings.Contains(normalized, " vs ") || strings.Contains(normalized, "versus") || strings.Contains(normalized, "difference"):
		return querydomain.IntentComparison
	default:
		return querydomain.IntentExample
	}
}

// ClassifyDifficulty は部分文字列ヒューリスティクスで難易度を分類します
func ClassifyDifficulty(normalized string) querydomain.Difficulty {
	switch {
	case strings.Contains(normalized, "basic") || strings.Contains(normalized, "beginner") || strings.Contains(normalized, "simple"):
		return querydomain.DifficultyBeginner
	case strings.Contains(normalized, "advanced") || strings.Contains(normalized, "complex") || strings.Contains(normalized, "optimize"):
		return querydomain.DifficultyAdvanced
	default:
		return querydomain.DifficultyIntermediate
	}
}

// extractTechnicalTerms はクエリに含まれる既知の技術用語を抽出します
func extractTechnicalTerms(normalized string) []string {
	var terms []string
	for _, course := range vocab.Courses() {
		for _, term := range vocab.TermsForCourse(course) {
			if strings.Contains(normalized, term) {
				terms = append(terms, term)
			}
		}
	}
	if terms == nil {
		terms = []string{}
	}
	return terms
}

// validCoursePreference は講座帰属の値が既知かどうかを判定します
func validCoursePreference(pref string) bool {
	if pref == "both" {
		return true
	}
	for _, course := range vocab.Courses() {
		if pref == course {
			return true
		}
	}
	return false
}

// sanitizeStrings は空要素を除去し、上限件数へ切り詰めます
func sanitizeStrings(values []string, limit int) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		cleaned = append(cleaned, v)
		if len(cleaned) >= limit {
			break
		}
	}
	return cleaned
}

// normalize はクエリを正規化します（小文字化・空白の圧縮）
func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// cacheKey は正規化クエリからキャッシュキーを計算します
func cacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

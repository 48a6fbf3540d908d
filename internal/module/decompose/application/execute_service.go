package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	decomposedomain "github.com/jinford/lecture-rag/internal/module/decompose/domain"
	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
	"github.com/jinford/lecture-rag/internal/shared/vocab"
)

const (
	// sourcesPerSubquery は下位質問1件あたりの検索件数
	sourcesPerSubquery = 5

	// answerTemperature は下位回答生成用のランダム性
	answerTemperature = 0.4

	// synthesisTemperature は最終回答合成用のランダム性
	synthesisTemperature = 0.4

	// prerequisiteSummaryLimit は依存先回答の要約として渡す最大文字数
	prerequisiteSummaryLimit = 300
)

// Searcher は下位質問の根拠取得に使う検索エンジンのインターフェース
type Searcher interface {
	HybridSearch(ctx context.Context, query string, limit int, filter searchdomain.SearchFilter) ([]*searchdomain.SearchResult, error)
}

// ExecuteService は分解済みクエリを依存順に実行し、最終回答を合成します
type ExecuteService struct {
	searcher Searcher
	client   llmdomain.Client
	logger   *slog.Logger
}

// NewExecuteService は新しいExecuteServiceを作成します
func NewExecuteService(searcher Searcher, client llmdomain.Client, logger *slog.Logger) *ExecuteService {
	if searcher == nil {
		panic("application.NewExecuteService: searcher is nil")
	}
	if client == nil {
		panic("application.NewExecuteService: client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecuteService{searcher: searcher, client: client, logger: logger}
}

// Execute は実行順序に従って下位質問を逐次実行し、回答を合成します
// 依存先が未完了の実行順は分解結果の不整合として扱い、それまでの部分結果で縮退します
// いかなる失敗でもエラーを呼び出し元へ伝播させず、必ず利用可能な結果を返します
func (s *ExecuteService) Execute(ctx context.Context, originalQuery string, dec *decomposedomain.SubqueryDecomposition) *decomposedomain.SubqueryResults {
	start := time.Now()

	completed := make(map[int]*decomposedomain.SubqueryResult, len(dec.Subqueries))
	var ordered []*decomposedomain.SubqueryResult
	degraded := false

	for _, idx := range dec.ExecutionOrder {
		deps := dec.Dependencies[idx]

		if err := checkDependencies(idx, deps, completed); err != nil {
			// 分解結果が不正: ここで打ち切り、収集済みの部分結果で縮退する
			s.logger.Error("subquery dependency check failed, returning partial results",
				"subquery", idx, "error", err)
			degraded = true
			break
		}

		result, err := s.executeSubquery(ctx, dec.Subqueries[idx], idx, deps, completed)
		if err != nil {
			s.logger.Error("subquery execution failed, returning partial results",
				"subquery", idx, "error", err)
			degraded = true
			break
		}

		completed[idx] = result
		ordered = append(ordered, result)
	}

	answer := s.synthesize(ctx, originalQuery, ordered, degraded)

	return &decomposedomain.SubqueryResults{
		State:             decomposedomain.StateSynthesized,
		SubqueryResults:   ordered,
		SynthesizedAnswer: answer,
		TotalSubqueries:   len(dec.Subqueries),
		ProcessingTime:    time.Since(start),
		OverallConfidence: overallConfidence(ordered, len(dec.Subqueries)),
	}
}

// checkDependencies は依存先がすべて完了済みかを検証します
func checkDependencies(idx int, deps []int, completed map[int]*decomposedomain.SubqueryResult) error {
	for _, dep := range deps {
		if _, ok := completed[dep]; !ok {
			return fmt.Errorf("下位質問%d: %w (依存先%d)", idx, decomposedomain.ErrDependencyNotMet, dep)
		}
	}
	return nil
}

// executeSubquery は1つの下位質問を検索+回答生成で処理します
func (s *ExecuteService) executeSubquery(ctx context.Context, query string, idx int, deps []int, completed map[int]*decomposedomain.SubqueryResult) (*decomposedomain.SubqueryResult, error) {
	sources, err := s.searcher.HybridSearch(ctx, query, sourcesPerSubquery, searchdomain.SearchFilter{})
	if err != nil {
		return nil, fmt.Errorf("下位質問の検索に失敗しました: %w", err)
	}

	answer, err := s.answerSubquery(ctx, query, sources, deps, completed)
	if err != nil {
		return nil, fmt.Errorf("下位回答の生成に失敗しました: %w", err)
	}

	return &decomposedomain.SubqueryResult{
		Query:          query,
		AnswerText:     answer,
		Sources:        sources,
		Dependencies:   deps,
		ExecutionOrder: idx,
		Confidence:     confidenceFor(answer, sources),
	}, nil
}

// answerSubquery は検索結果と依存先回答の要約を文脈に回答を生成します
func (s *ExecuteService) answerSubquery(ctx context.Context, query string, sources []*searchdomain.SearchResult, deps []int, completed map[int]*decomposedomain.SubqueryResult) (string, error) {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the course passages below.\n\n")

	if len(deps) > 0 {
		sb.WriteString("Context from prerequisite answers:\n")
		for _, dep := range deps {
			prev := completed[dep]
			sb.WriteString("- ")
			sb.WriteString(prev.Query)
			sb.WriteString(": ")
			sb.WriteString(summarize(prev.AnswerText))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(sources) == 0 {
		sb.WriteString("(no passages retrieved; answer from general course knowledge and say so)\n\n")
	} else {
		sb.WriteString("Passages:\n")
		for i, src := range sources {
			sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, src.Chunk.Content))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)

	resp, err := s.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:      sb.String(),
		Temperature: answerTemperature,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

// summarize は依存先回答を固定長へ切り詰めます
func summarize(answer string) string {
	answer = strings.TrimSpace(answer)
	if len(answer) <= prerequisiteSummaryLimit {
		return answer
	}
	return answer[:prerequisiteSummaryLimit] + "..."
}

// confidenceFor は下位回答の確信度を計算します
// 根拠の平均スコア・回答長の適正ボーナス・専門用語の出現ボーナスを合算し1.0で上限を切ります
func confidenceFor(answer string, sources []*searchdomain.SearchResult) float64 {
	confidence := 0.0

	if len(sources) > 0 {
		var total float64
		for _, src := range sources {
			total += src.Score
		}
		confidence += total / float64(len(sources))
	}

	if n := len(answer); n >= 100 && n <= 2000 {
		confidence += 0.1
	}

	if vocab.CountTechnicalTerms(answer) > 0 {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	return confidence
}

// overallConfidence は全体確信度（完了した下位回答の平均）を計算します
// 未完了分は0として平均に含め、部分結果の縮退を確信度へ反映させます
func overallConfidence(results []*decomposedomain.SubqueryResult, total int) float64 {
	if total == 0 {
		return 0
	}

	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}

	return sum / float64(total)
}

// synthesize は下位回答群から最終回答を組み立てます
// 1件なら直接その回答、複数件ならLLM合成、合成失敗時は見出し連結へフォールバックします
func (s *ExecuteService) synthesize(ctx context.Context, originalQuery string, results []*decomposedomain.SubqueryResult, degraded bool) string {
	if len(results) == 0 {
		return "Sorry, none of the sub-questions could be answered. Please try rephrasing your question."
	}

	var answer string
	if len(results) == 1 && !degraded {
		answer = results[0].AnswerText
	} else {
		answer = s.synthesizeWithLLM(ctx, originalQuery, results)
		if answer == "" {
			answer = concatenateAnswers(results)
		}
	}

	if degraded {
		answer = "Note: only part of your question could be answered.\n\n" + answer
	}

	return answer
}

// synthesizeWithLLM はLLMによる最終回答の合成を試みます（失敗時は空文字列）
func (s *ExecuteService) synthesizeWithLLM(ctx context.Context, originalQuery string, results []*decomposedomain.SubqueryResult) string {
	var sb strings.Builder
	sb.WriteString("Combine the sub-answers below into one coherent answer to the original question.\n\n")
	sb.WriteString("Original question: ")
	sb.WriteString(originalQuery)
	sb.WriteString("\n\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("Sub-question (confidence %.2f): %s\nAnswer: %s\n\n", r.Confidence, r.Query, r.AnswerText))
	}

	resp, err := s.client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:      sb.String(),
		Temperature: synthesisTemperature,
		MaxTokens:   1024,
	})
	if err != nil {
		s.logger.Warn("answer synthesis failed, falling back to concatenation", "error", err)
		return ""
	}

	return resp.Content
}

// concatenateAnswers は下位質問を見出しとして回答を連結します
// 合成が完全に失敗しても必ず回答を生成できることを保証します
func concatenateAnswers(results []*decomposedomain.SubqueryResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(r.Query)
		sb.WriteString("\n")
		sb.WriteString(r.AnswerText)
	}
	return sb.String()
}

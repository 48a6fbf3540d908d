package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	decomposedomain "github.com/jinford/lecture-rag/internal/module/decompose/domain"
	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// mockSearcher はテスト用の検索エンジン実装
type mockSearcher struct {
	results []*searchdomain.SearchResult
	err     error
}

func (m *mockSearcher) HybridSearch(_ context.Context, _ string, _ int, _ searchdomain.SearchFilter) ([]*searchdomain.SearchResult, error) {
	return m.results, m.err
}

// mockClient は呼び出し回数を記録し、failOnCall番目（1始まり）の呼び出しで失敗するLLMクライアント
type mockClient struct {
	mu         sync.Mutex
	calls      int
	failOnCall int
	response   string
}

func (m *mockClient) GenerateCompletion(_ context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOnCall > 0 && m.calls == m.failOnCall {
		return llmdomain.CompletionResponse{}, fmt.Errorf("llm failure on call %d", m.calls)
	}
	if m.response != "" {
		return llmdomain.CompletionResponse{Content: m.response}, nil
	}
	return llmdomain.CompletionResponse{Content: "answer for: " + firstLine(req.Prompt)}, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func testSources() []*searchdomain.SearchResult {
	return []*searchdomain.SearchResult{
		{
			Chunk: &ingestdomain.Chunk{ID: "c1", Content: "closures capture their lexical scope"},
			Score: 0.8,
		},
	}
}

func testDecomposition(t *testing.T) *decomposedomain.SubqueryDecomposition {
	t.Helper()
	dec, err := decomposedomain.NewSubqueryDecomposition(
		[]string{"what is a closure", "what is a module", "how do they differ"},
		[]int{0, 1, 2},
		map[int][]int{2: {0, 1}},
		decomposedomain.ComplexityModerate,
	)
	require.NoError(t, err)
	return dec
}

func TestExecute_AllSubqueriesSynthesized(t *testing.T) {
	// 3件の下位質問がすべて実行され、最終回答が合成される
	searcher := &mockSearcher{results: testSources()}
	client := &mockClient{}
	svc := NewExecuteService(searcher, client, nil)

	results := svc.Execute(context.Background(), "compare closures and modules", testDecomposition(t))

	assert.Equal(t, decomposedomain.StateSynthesized, results.State)
	assert.Len(t, results.SubqueryResults, 3)
	assert.Equal(t, 3, results.TotalSubqueries)
	assert.NotEmpty(t, results.SynthesizedAnswer)
	assert.Greater(t, results.OverallConfidence, 0.0)
}

func TestExecute_SubqueryFailureReturnsPartialResults(t *testing.T) {
	// 2件目の下位質問が失敗した場合、1件目だけの部分結果と縮退メッセージが返り、エラーは伝播しない
	searcher := &mockSearcher{results: testSources()}
	client := &mockClient{failOnCall: 2} // 1件目の回答生成は成功、2件目で失敗
	svc := NewExecuteService(searcher, client, nil)

	results := svc.Execute(context.Background(), "compare closures and modules", testDecomposition(t))

	require.Len(t, results.SubqueryResults, 1)
	assert.Equal(t, 0, results.SubqueryResults[0].ExecutionOrder)
	assert.Equal(t, 3, results.TotalSubqueries)
	assert.Contains(t, results.SynthesizedAnswer, "only part")
}

func TestExecute_DependencyNotMetDegrades(t *testing.T) {
	// 依存先が未完了のまま実行順が到来した分解は打ち切られ、部分結果で縮退する
	dec := &decomposedomain.SubqueryDecomposition{
		NeedsDecomposition: true,
		Subqueries:         []string{"q0", "q1"},
		ExecutionOrder:     []int{0, 1},
		// 検証を経ない不正な依存関係（q0が自分より後のq1へ依存）
		Dependencies: map[int][]int{0: {1}},
		Complexity:   decomposedomain.ComplexityModerate,
	}

	searcher := &mockSearcher{results: testSources()}
	client := &mockClient{}
	svc := NewExecuteService(searcher, client, nil)

	results := svc.Execute(context.Background(), "q", dec)

	assert.Empty(t, results.SubqueryResults)
	assert.NotEmpty(t, results.SynthesizedAnswer)
}

func TestExecute_SingleSubqueryAnswerIsDirect(t *testing.T) {
	// 下位質問が1件の場合はその回答がそのまま最終回答になる（合成呼び出しなし）
	searcher := &mockSearcher{results: testSources()}
	client := &mockClient{response: "direct answer"}
	svc := NewExecuteService(searcher, client, nil)

	dec := decomposedomain.NewSimpleDecomposition("what is a closure")
	results := svc.Execute(context.Background(), "what is a closure", dec)

	assert.Equal(t, "direct answer", results.SynthesizedAnswer)
	assert.Equal(t, 1, results.TotalSubqueries)
}

func TestExecute_SearchFailureDegrades(t *testing.T) {
	// 検索の失敗も下位質問の失敗として扱われ、呼び出し元へエラーを投げない
	searcher := &mockSearcher{err: fmt.Errorf("index unavailable")}
	client := &mockClient{}
	svc := NewExecuteService(searcher, client, nil)

	results := svc.Execute(context.Background(), "q", testDecomposition(t))

	assert.Empty(t, results.SubqueryResults)
	assert.NotEmpty(t, results.SynthesizedAnswer)
	assert.Equal(t, 0.0, results.OverallConfidence)
}

func TestConfidenceFor_Components(t *testing.T) {
	// 確信度は根拠スコア・回答長・専門用語の各成分を合算し、1.0で上限を切る
	longAnswer := strings.Repeat("closures capture scope and promise chains resolve ", 5)

	withAll := confidenceFor(longAnswer, []*searchdomain.SearchResult{{Score: 0.7}})
	assert.InDelta(t, 0.7+0.1+0.1, withAll, 1e-9)

	noSources := confidenceFor("short", nil)
	assert.Equal(t, 0.0, noSources)

	capped := confidenceFor(longAnswer, []*searchdomain.SearchResult{{Score: 1.0}})
	assert.Equal(t, 1.0, capped)
}

func TestConcatenateAnswers_Fallback(t *testing.T) {
	// 連結フォールバックは下位質問を見出しとして全回答を含める
	results := []*decomposedomain.SubqueryResult{
		{Query: "q0", AnswerText: "a0"},
		{Query: "q1", AnswerText: "a1"},
	}

	combined := concatenateAnswers(results)
	assert.Contains(t, combined, "## q0")
	assert.Contains(t, combined, "a0")
	assert.Contains(t, combined, "## q1")
	assert.Contains(t, combined, "a1")
}

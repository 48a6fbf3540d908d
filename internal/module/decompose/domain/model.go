package domain

import (
	"fmt"
	"time"

	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// State は分解処理の状態を表す
type State string

const (
	// StateNotDecomposed は分解が不要と判定された（または未判定の）状態
	StateNotDecomposed State = "NOT_DECOMPOSED"
	// StateDecomposed は下位質問への分解が完了した状態
	StateDecomposed State = "DECOMPOSED"
	// StateExecuting は下位質問を実行中の状態
	StateExecuting State = "EXECUTING"
	// StateSynthesized は最終回答の合成まで完了した状態
	StateSynthesized State = "SYNTHESIZED"
)

// Complexity は分解判定時に推定したクエリの複雑さ
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// MaxSubqueries は1クエリあたりの下位質問数の上限
const MaxSubqueries = 5

// SubqueryDecomposition は下位質問の集合と依存関係のDAGを表す
// ExecutionOrderはDependenciesと整合するトポロジカル順序であることを構築時に検証済み
type SubqueryDecomposition struct {
	NeedsDecomposition bool          `json:"needsDecomposition"`
	Subqueries         []string      `json:"subqueries"`
	ExecutionOrder     []int         `json:"executionOrder"`
	Dependencies       map[int][]int `json:"dependencies"`
	Complexity         Complexity    `json:"complexity"`
}

// NewSubqueryDecomposition は分解結果を検証して構築します
// 下位質問数の上限クランプ・実行順序の補完・依存関係のトポロジカル整合性検証を行います
func NewSubqueryDecomposition(subqueries []string, executionOrder []int, dependencies map[int][]int, complexity Complexity) (*SubqueryDecomposition, error) {
	if len(subqueries) == 0 {
		return nil, fmt.Errorf("下位質問が1件もありません")
	}

	if len(subqueries) > MaxSubqueries {
		subqueries = subqueries[:MaxSubqueries]
	}
	n := len(subqueries)

	// 実行順序の欠落・範囲外・重複は配列順で補完する
	if !validOrder(executionOrder, n) {
		executionOrder = defaultOrder(n)
	}

	// 依存関係の不正（範囲外・自己依存）は空扱いにする
	cleaned := make(map[int][]int, len(dependencies))
	for idx, deps := range dependencies {
		if idx < 0 || idx >= n {
			continue
		}
		var valid []int
		for _, dep := range deps {
			if dep < 0 || dep >= n || dep == idx {
				continue
			}
			valid = append(valid, dep)
		}
		if len(valid) > 0 {
			cleaned[idx] = valid
		}
	}

	if err := verifyTopologicalOrder(executionOrder, cleaned); err != nil {
		return nil, fmt.Errorf("実行順序が依存関係と整合しません: %w", err)
	}

	if complexity == "" {
		complexity = ComplexityModerate
	}

	return &SubqueryDecomposition{
		NeedsDecomposition: n > 1,
		Subqueries:         subqueries,
		ExecutionOrder:     executionOrder,
		Dependencies:       cleaned,
		Complexity:         complexity,
	}, nil
}

// NewSimpleDecomposition は分解不要と判定されたクエリの終端状態を構築します
func NewSimpleDecomposition(query string) *SubqueryDecomposition {
	return &SubqueryDecomposition{
		NeedsDecomposition: false,
		Subqueries:         []string{query},
		ExecutionOrder:     []int{0},
		Dependencies:       map[int][]int{},
		Complexity:         ComplexitySimple,
	}
}

// validOrder は実行順序が0..n-1のちょうど1回ずつの並びかを検証します
func validOrder(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make(map[int]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

// defaultOrder は配列順の実行順序を返します
func defaultOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// verifyTopologicalOrder は実行順序が依存関係のトポロジカル順序であることを検証します
func verifyTopologicalOrder(order []int, dependencies map[int][]int) error {
	position := make(map[int]int, len(order))
	for pos, idx := range order {
		position[idx] = pos
	}

	for idx, deps := range dependencies {
		for _, dep := range deps {
			if position[dep] >= position[idx] {
				return fmt.Errorf("下位質問%dは依存先%dより先に実行されます", idx, dep)
			}
		}
	}

	return nil
}

// SubqueryResult は1つの下位質問の実行結果を表す（生成後は不変）
type SubqueryResult struct {
	Query          string                       `json:"query"`
	AnswerText     string                       `json:"answerText"`
	Sources        []*searchdomain.SearchResult `json:"sources"`
	Dependencies   []int                        `json:"dependencies"`
	ExecutionOrder int                          `json:"executionOrder"`
	Confidence     float64                      `json:"confidence"`
}

// SubqueryResults は分解実行全体の結果を表す
type SubqueryResults struct {
	State             State             `json:"state"`
	SubqueryResults   []*SubqueryResult `json:"subqueryResults"`
	SynthesizedAnswer string            `json:"synthesizedAnswer"`
	TotalSubqueries   int               `json:"totalSubqueries"`
	ProcessingTime    time.Duration     `json:"processingTime"`
	OverallConfidence float64           `json:"overallConfidence"`
}

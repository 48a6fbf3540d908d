package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IntentType はクエリの意図分類
type IntentType string

const (
	IntentConcept        IntentType = "concept"
	IntentImplementation IntentType = "implementation"
	IntentDebugging      IntentType = "debugging"
	IntentComparison     IntentType = "comparison"
	IntentExample        IntentType = "example"
)

// Valid は既知の意図分類かどうかを返す
func (t IntentType) Valid() bool {
	switch t {
	case IntentConcept, IntentImplementation, IntentDebugging, IntentComparison, IntentExample:
		return true
	}
	return false
}

// Difficulty はクエリの難易度分類
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid は既知の難易度かどうかを返す
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// SearchStrategy は検索方式の選択
type SearchStrategy string

const (
	StrategySemantic SearchStrategy = "semantic"
	StrategyKeyword  SearchStrategy = "keyword"
	StrategyHybrid   SearchStrategy = "hybrid"
)

// Valid は既知の検索方式かどうかを返す
func (s SearchStrategy) Valid() bool {
	switch s {
	case StrategySemantic, StrategyKeyword, StrategyHybrid:
		return true
	}
	return false
}

// QueryIntent は意図検出の結果
type QueryIntent struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// Message は会話履歴の1ターンを表す
// 永続化層が供給する読み取り専用の入力であり、このコアは会話状態を書き込まない
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// OptimizedQuery はクエリ最適化の結果を表す
type OptimizedQuery struct {
	Original         string         `json:"original"`
	Expanded         []string       `json:"expanded"`
	TechnicalTerms   []string       `json:"technicalTerms"`
	Intent           IntentType     `json:"intent"`
	Difficulty       Difficulty     `json:"difficulty"`
	CoursePreference string         `json:"coursePreference"` // 講座識別子または "both"
	SearchStrategy   SearchStrategy `json:"searchStrategy"`
}

// intentContextPhrases は意図ごとのEmbedding用コンテキスト句
var intentContextPhrases = map[IntentType]string{
	IntentConcept:        "explanation of programming concept",
	IntentImplementation: "how to implement in code",
	IntentDebugging:      "fixing errors and debugging",
	IntentComparison:     "comparing alternatives and differences",
	IntentExample:        "practical code example",
}

// EmbeddingText はEmbedding生成用のテキストを組み立てる
// 1回のEmbedding呼び出しでクエリの意図全体を表現するため、
// 元クエリ・上位2件の拡張・上位5件の専門用語・意図コンテキスト句を連結する
func (q *OptimizedQuery) EmbeddingText() string {
	parts := []string{q.Original}

	expanded := q.Expanded
	if len(expanded) > 2 {
		expanded = expanded[:2]
	}
	parts = append(parts, expanded...)

	terms := q.TechnicalTerms
	if len(terms) > 5 {
		terms = terms[:5]
	}
	if len(terms) > 0 {
		parts = append(parts, strings.Join(terms, " "))
	}

	if phrase, ok := intentContextPhrases[q.Intent]; ok {
		parts = append(parts, phrase)
	}

	return strings.Join(parts, " ")
}

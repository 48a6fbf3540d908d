package rewriter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	"github.com/jinford/lecture-rag/internal/shared/vocab"
)

const (
	// strategyTemperature はリライト生成用のランダム性
	strategyTemperature = 0.5

	// maxVariantsPerStrategy は1戦略あたりの候補数の上限
	maxVariantsPerStrategy = 3
)

// variantsPayload はLLM戦略のレスポンスJSON形式
type variantsPayload struct {
	Variants []string `json:"variants"`
}

// callForVariants はLLMへリライト候補を要求する共通処理
func callForVariants(ctx context.Context, client llmdomain.Client, prompt string) ([]string, error) {
	resp, err := client.GenerateCompletion(ctx, llmdomain.CompletionRequest{
		Prompt:         prompt,
		Temperature:    strategyTemperature,
		MaxTokens:      256,
		ResponseFormat: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("リライト候補の生成に失敗しました: %w", err)
	}

	var payload variantsPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		return nil, fmt.Errorf("リライト候補のパースに失敗しました: %w", err)
	}

	variants := make([]string, 0, len(payload.Variants))
	for _, v := range payload.Variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		variants = append(variants, v)
		if len(variants) >= maxVariantsPerStrategy {
			break
		}
	}

	return variants, nil
}

// SemanticExpansion はLLMで同義語・関連語を織り込んだ言い換えを生成する戦略
type SemanticExpansion struct {
	client llmdomain.Client
}

// NewSemanticExpansion は新しいSemanticExpansionを作成します
func NewSemanticExpansion(client llmdomain.Client) *SemanticExpansion {
	if client == nil {
		panic("rewriter.NewSemanticExpansion: client is nil")
	}
	return &SemanticExpansion{client: client}
}

func (s *SemanticExpansion) Name() string { return "semantic_expansion" }

func (s *SemanticExpansion) Run(ctx context.Context, query string, rc Context) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("Rewrite the programming question below into up to 3 alternative phrasings ")
	sb.WriteString("that use synonyms and closely related technical terms while preserving meaning.\n")
	sb.WriteString("Respond with strict JSON: {\"variants\": [\"...\"]}\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return callForVariants(ctx, s.client, sb.String())
}

// TermInjection は講座固有の専門用語のうちクエリに未出現のものを補う戦略
// 外部サービスを呼ばないため、LLMが停止していても動作する
type TermInjection struct{}

// NewTermInjection は新しいTermInjectionを作成します
func NewTermInjection() *TermInjection {
	return &TermInjection{}
}

func (s *TermInjection) Name() string { return "term_injection" }

func (s *TermInjection) Run(_ context.Context, query string, rc Context) ([]string, error) {
	lower := strings.ToLower(query)

	course := rc.Course
	if course == "" || course == "both" {
		course = vocab.GuessCourse(lower)
	}

	var unused []string
	for _, c := range vocab.Courses() {
		if course != "both" && c != course {
			continue
		}
		for _, term := range vocab.TermsForCourse(c) {
			if strings.Contains(lower, term) {
				continue
			}
			// クエリ中の語と部分一致する用語だけを注入候補にする
			for _, word := range strings.Fields(lower) {
				if len(word) >= 4 && (strings.Contains(term, word) || strings.Contains(word, term)) {
					unused = append(unused, term)
					break
				}
			}
		}
	}

	if len(unused) == 0 {
		return nil, nil
	}
	if len(unused) > maxVariantsPerStrategy {
		unused = unused[:maxVariantsPerStrategy]
	}

	variants := make([]string, 0, len(unused))
	for _, term := range unused {
		variants = append(variants, query+" "+term)
	}

	return variants, nil
}

// ContextualRefinement は直近の会話ターンを織り込んでクエリを具体化する戦略
type ContextualRefinement struct {
	client llmdomain.Client
}

// NewContextualRefinement は新しいContextualRefinementを作成します
func NewContextualRefinement(client llmdomain.Client) *ContextualRefinement {
	if client == nil {
		panic("rewriter.NewContextualRefinement: client is nil")
	}
	return &ContextualRefinement{client: client}
}

func (s *ContextualRefinement) Name() string { return "contextual_refinement" }

func (s *ContextualRefinement) Run(ctx context.Context, query string, rc Context) ([]string, error) {
	if len(rc.History) == 0 {
		return nil, nil
	}

	// 直近1〜3ターンのみを文脈として使う
	turns := rc.History
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}

	var sb strings.Builder
	sb.WriteString("Given the recent conversation turns, rewrite the latest question into up to 3 ")
	sb.WriteString("self-contained phrasings that incorporate the conversational context.\n")
	sb.WriteString("Respond with strict JSON: {\"variants\": [\"...\"]}\n\n")
	sb.WriteString("Conversation:\n")
	for _, m := range turns {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)

	return callForVariants(ctx, s.client, sb.String())
}

// synonymTable は静的な同義語の置換表
var synonymTable = map[string]string{
	"function":  "method",
	"method":    "function",
	"create":    "build",
	"build":     "create",
	"fix":       "debug",
	"bug":       "error",
	"error":     "problem",
	"variable":  "value",
	"show":      "display",
	"display":   "render",
	"use":       "apply",
	"make":      "create",
	"delete":    "remove",
	"change":    "update",
	"array":     "list",
	"fast":      "performant",
}

// SynonymSubstitution は静的な置換表による同義語置き換え戦略
// 外部サービスを呼ばないため、LLMが停止していても動作する
type SynonymSubstitution struct{}

// NewSynonymSubstitution は新しいSynonymSubstitutionを作成します
func NewSynonymSubstitution() *SynonymSubstitution {
	return &SynonymSubstitution{}
}

func (s *SynonymSubstitution) Name() string { return "synonym_substitution" }

func (s *SynonymSubstitution) Run(_ context.Context, query string, _ Context) ([]string, error) {
	words := strings.Fields(query)

	var variants []string
	for i, word := range words {
		replacement, ok := synonymTable[strings.ToLower(word)]
		if !ok {
			continue
		}

		swapped := make([]string, len(words))
		copy(swapped, words)
		swapped[i] = replacement
		variants = append(variants, strings.Join(swapped, " "))

		if len(variants) >= maxVariantsPerStrategy {
			break
		}
	}

	return variants, nil
}

// conjunctionWords は質問分割のトリガーとなる接続語
var conjunctionWords = []string{" and ", " or ", " also ", " as well as ", " along with "}

// questionSplitMinWords は質問分割が発動する最小語数
const questionSplitMinWords = 8

// QuestionDecomposition は接続語を含む長いクエリを独立した下位質問へ分割する戦略
type QuestionDecomposition struct {
	client llmdomain.Client
}

// NewQuestionDecomposition は新しいQuestionDecompositionを作成します
func NewQuestionDecomposition(client llmdomain.Client) *QuestionDecomposition {
	if client == nil {
		panic("rewriter.NewQuestionDecomposition: client is nil")
	}
	return &QuestionDecomposition{client: client}
}

func (s *QuestionDecomposition) Name() string { return "question_decomposition" }

func (s *QuestionDecomposition) Run(ctx context.Context, query string, _ Context) ([]string, error) {
	lower := " " + strings.ToLower(query) + " "

	if len(strings.Fields(query)) < questionSplitMinWords {
		return nil, nil
	}

	hasConjunction := false
	for _, conj := range conjunctionWords {
		if strings.Contains(lower, conj) {
			hasConjunction = true
			break
		}
	}
	if !hasConjunction {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Split the compound programming question below into up to 3 independent, ")
	sb.WriteString("self-contained sub-questions.\n")
	sb.WriteString("Respond with strict JSON: {\"variants\": [\"...\"]}\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)

	return callForVariants(ctx, s.client, sb.String())
}

// followUpPrefixes はフォローアップ質問の典型的な冒頭表現
var followUpPrefixes = []string{"and ", "also ", "what about ", "how about ", "but "}

// ContextFusion はフォローアップ形式のクエリへ直前の話題を融合する戦略
type ContextFusion struct{}

// NewContextFusion は新しいContextFusionを作成します
func NewContextFusion() *ContextFusion {
	return &ContextFusion{}
}

func (s *ContextFusion) Name() string { return "context_fusion" }

func (s *ContextFusion) Run(_ context.Context, query string, rc Context) ([]string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))

	isFollowUp := false
	for _, prefix := range followUpPrefixes {
		if strings.HasPrefix(lower, prefix) {
			isFollowUp = true
			break
		}
	}
	if !isFollowUp || len(rc.History) == 0 {
		return nil, nil
	}

	// 直前のユーザ発話を話題として前置する
	var lastUser string
	for i := len(rc.History) - 1; i >= 0; i-- {
		if rc.History[i].Role == "user" {
			lastUser = rc.History[i].Content
			break
		}
	}
	if lastUser == "" {
		return nil, nil
	}

	fused := fmt.Sprintf("In the context of %q: %s", lastUser, query)
	return []string{fused}, nil
}

var (
	_ Strategy = (*SemanticExpansion)(nil)
	_ Strategy = (*TermInjection)(nil)
	_ Strategy = (*ContextualRefinement)(nil)
	_ Strategy = (*SynonymSubstitution)(nil)
	_ Strategy = (*QuestionDecomposition)(nil)
	_ Strategy = (*ContextFusion)(nil)
)

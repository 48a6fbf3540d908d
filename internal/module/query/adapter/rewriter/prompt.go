package rewriter

import (
	"fmt"
	"strings"

	querydomain "github.com/jinford/lecture-rag/internal/module/query/domain"
)

// buildIntentPrompt は意図検出用のプロンプトを構築します
func buildIntentPrompt(query string) string {
	var sb strings.Builder
	sb.WriteString("Classify the intent of the programming question below.\n")
	sb.WriteString("Respond with strict JSON: {\"intent\": \"...\", \"confidence\": 0.0-1.0}\n")
	sb.WriteString("intent must be one of: concept, implementation, debugging, comparison, example\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

// buildLevelPrompt は難易度判定用のプロンプトを構築します
func buildLevelPrompt(query string) string {
	var sb strings.Builder
	sb.WriteString("Assess the technical level of the programming question below.\n")
	sb.WriteString("Respond with strict JSON: {\"level\": \"...\"}\n")
	sb.WriteString("level must be one of: beginner, intermediate, advanced\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

// buildRankPrompt は候補ランキング用のプロンプトを構築します
func buildRankPrompt(query string, intent querydomain.QueryIntent, level querydomain.Difficulty, variants []string) string {
	var sb strings.Builder
	sb.WriteString("Rank the candidate search queries below by how well they would retrieve ")
	sb.WriteString("course content answering the original question.\n")
	sb.WriteString("Respond with strict JSON: {\"order\": [best index, next, ...]} using 0-based indices.\n\n")
	sb.WriteString("Original question: ")
	sb.WriteString(query)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Detected intent: %s (confidence %.2f)\n", intent.Type, intent.Confidence))
	sb.WriteString(fmt.Sprintf("Technical level: %s\n\n", level))
	sb.WriteString("Candidates:\n")
	for i, v := range variants {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i, v))
	}
	return sb.String()
}

package optimizer

import (
	"fmt"
	"strings"

	"github.com/jinford/lecture-rag/internal/shared/vocab"
)

// buildOptimizePrompt はクエリ最適化用のプロンプトを構築します
func buildOptimizePrompt(query string) string {
	var sb strings.Builder

	sb.WriteString("You are a search query analyst for a programming course platform.\n")
	sb.WriteString("Analyze the student question below and respond with strict JSON only.\n\n")

	sb.WriteString("Required JSON fields:\n")
	sb.WriteString("- expandedQueries: 3-5 alternative phrasings that improve retrieval\n")
	sb.WriteString("- technicalTerms: technical terms relevant to the question\n")
	sb.WriteString("- intent: one of \"concept\", \"implementation\", \"debugging\", \"comparison\", \"example\"\n")
	sb.WriteString("- difficulty: one of \"beginner\", \"intermediate\", \"advanced\"\n")
	sb.WriteString(fmt.Sprintf("- coursePreference: one of %q, %q, \"both\"\n", vocab.CourseJavaScript, vocab.CourseReact))
	sb.WriteString("- searchStrategy: one of \"semantic\", \"keyword\", \"hybrid\"\n\n")

	sb.WriteString("Question:\n")
	sb.WriteString(query)
	sb.WriteString("\n")

	return sb.String()
}

package decomposer

import "strings"

// buildDecomposePrompt はクエリ分解用のプロンプトを構築します
func buildDecomposePrompt(query string) string {
	var sb strings.Builder
	sb.WriteString("Decompose the complex programming question below into 2-4 simpler sub-questions ")
	sb.WriteString("that can be answered independently or in sequence.\n")
	sb.WriteString("Respond with strict JSON:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"subqueries\": [\"...\"],\n")
	sb.WriteString("  \"executionOrder\": [0, 1, ...],\n")
	sb.WriteString("  \"dependencies\": {\"1\": [0]},\n")
	sb.WriteString("  \"complexity\": \"moderate\" or \"complex\"\n")
	sb.WriteString("}\n")
	sb.WriteString("dependencies maps a sub-question index to the indices it needs answered first.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

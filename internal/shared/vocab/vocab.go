// Package vocab は講座ドメインの技術語彙を提供します
// チャンク分割時のトピック抽出と、クエリ解析時の講座判定・専門用語注入で共有されます
package vocab

import "strings"

// CourseJavaScript / CourseReact は既定の講座識別子
const (
	CourseJavaScript = "javascript"
	CourseReact      = "react"
)

// courseTerms は講座ごとの技術用語リスト
var courseTerms = map[string][]string{
	CourseJavaScript: {
		"closure", "scope", "hoisting", "prototype", "this",
		"async", "await", "promise", "callback", "event loop",
		"const", "let", "arrow function", "destructuring", "spread",
		"map", "filter", "reduce", "iterator", "generator",
		"module", "import", "export", "strict mode", "typeof",
	},
	CourseReact: {
		"component", "props", "state", "hooks", "jsx",
		"usestate", "useeffect", "usememo", "usecallback", "useref",
		"context", "reducer", "redux", "virtual dom", "render",
		"lifecycle", "memo", "fragment", "portal", "suspense",
		"controlled component", "key", "event handler", "custom hook", "router",
	},
}

// topicTerms はトピック名と、その出現を示す用語の対応表
var topicTerms = map[string][]string{
	"async-programming":   {"async", "await", "promise", "callback", "event loop", "settimeout"},
	"functions-and-scope": {"closure", "scope", "hoisting", "arrow function", "this", "bind"},
	"data-structures":     {"array", "object", "map", "set", "destructuring", "spread"},
	"error-handling":      {"error", "exception", "try", "catch", "throw", "debug"},
	"react-components":    {"component", "props", "jsx", "render", "fragment", "memo"},
	"state-management":    {"state", "usestate", "reducer", "redux", "context", "store"},
	"react-hooks":         {"hooks", "useeffect", "usememo", "usecallback", "useref", "custom hook"},
	"modules-and-tooling": {"module", "import", "export", "bundler", "npm", "build"},
}

// commonWords はキーワード抽出から除外する一般語
var commonWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "your": true, "what": true, "when": true, "then": true,
	"they": true, "there": true, "here": true, "just": true, "like": true,
	"about": true, "which": true, "going": true, "really": true, "because": true,
	"something": true, "actually": true, "basically": true, "let's": true,
	"want": true, "need": true, "look": true, "right": true, "okay": true,
	"little": true, "thing": true, "things": true, "time": true, "very": true,
	"some": true, "more": true, "also": true, "them": true, "were": true,
	"been": true, "does": true, "doing": true, "into": true, "over": true,
}

// Courses は既知の講座識別子の一覧を返す
func Courses() []string {
	return []string{CourseJavaScript, CourseReact}
}

// TermsForCourse は指定講座の技術用語リストを返す（不明な講座は空）
func TermsForCourse(course string) []string {
	return courseTerms[strings.ToLower(course)]
}

// MatchTopics はテキストに含まれるトピックを抽出する
func MatchTopics(text string) []string {
	lower := strings.ToLower(text)

	var topics []string
	for topic, terms := range topicTerms {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				topics = append(topics, topic)
				break
			}
		}
	}

	return topics
}

// CountTechnicalTerms はテキストに出現する技術用語の数を数える（全講座横断）
func CountTechnicalTerms(text string) int {
	lower := strings.ToLower(text)

	count := 0
	for _, terms := range courseTerms {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				count++
			}
		}
	}

	return count
}

// IsCommonWord は一般語（キーワード抽出の対象外）かどうかを判定する
func IsCommonWord(word string) bool {
	return commonWords[strings.ToLower(word)]
}

// GuessCourse はテキスト中の講座固有用語から講座の帰属を推定する
// どちらとも判定できない場合は "both" を返す
func GuessCourse(text string) string {
	lower := strings.ToLower(text)

	scores := make(map[string]int, len(courseTerms))
	for course, terms := range courseTerms {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				scores[course]++
			}
		}
	}

	jsScore := scores[CourseJavaScript]
	reactScore := scores[CourseReact]

	switch {
	case jsScore > reactScore:
		return CourseJavaScript
	case reactScore > jsScore:
		return CourseReact
	default:
		return "both"
	}
}

package domain

import "context"

// CompletionRequest はテキスト生成リクエストを表す
type CompletionRequest struct {
	// Prompt は生成に使用するプロンプト全文
	Prompt string

	// Model は使用するモデル名（空の場合はクライアントのデフォルト）
	Model string

	// Temperature は生成のランダム性（0.0〜2.0）
	Temperature float64

	// MaxTokens は生成する最大トークン数（0の場合は無制限）
	MaxTokens int

	// ResponseFormat に "json" を指定すると厳密なJSONレスポンスを要求する
	ResponseFormat string
}

// CompletionResponse はテキスト生成のレスポンスを表す
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Client はテキスト生成サービスのインターフェース
type Client interface {
	// GenerateCompletion はプロンプトからテキストを生成する
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

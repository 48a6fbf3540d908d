package adapter

import (
	"context"
	"fmt"

	"github.com/jinford/lecture-rag/internal/module/llm/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// MaxBatchSize はEmbeddings APIの1回あたりの最大入力数
	MaxBatchSize = 100

	// MaxInputTokens はEmbeddingモデルの入力トークン上限
	MaxInputTokens = 8191
)

// OpenAIEmbedder はOpenAI APIを使用したEmbedder実装
type OpenAIEmbedder struct {
	client    openai.Client
	encoder   *tiktoken.Tiktoken
	model     string
	dimension int
}

// NewOpenAIEmbedder は新しいOpenAIEmbedderを作成します
func NewOpenAIEmbedder(apiKey, model string, dimension int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}

	// cl100k_baseエンコーダを使用（text-embedding-3系と互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIEmbedder{
		client:    client,
		encoder:   encoder,
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed はテキストからEmbeddingベクトルを生成する
// domain.Embedderインターフェースを実装
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	return embeddings[0], nil
}

// Dimension はEmbeddingベクトルの次元数を返す
// domain.Embedderインターフェースを実装
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// BatchEmbed はバッチでEmbeddingを生成します（最大100件）
// 各入力はモデルのトークン上限に収まるようトリミングされます
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrEmptyInput
	}

	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), MaxBatchSize)
	}

	// トークン上限を超える入力をトリミング
	trimmed := make([]string, len(texts))
	for i, text := range texts {
		trimmed[i] = e.trimToTokenLimit(text, MaxInputTokens)
	}

	// リクエストパラメータを作成
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	// Input を設定（単一または配列）
	if len(trimmed) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(trimmed[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: trimmed,
		}
	}

	// dimensionパラメータを追加（text-embedding-3-smallなどで有効）
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	// OpenAI Embeddings APIを呼び出し
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// レスポンスからベクトルを抽出（入力順を保持）
	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		// float64からfloat32に変換
		vector := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float32(v)
		}
		embeddings[i] = vector
	}

	return embeddings, nil
}

// GetModelName はモデル名を取得します
func (e *OpenAIEmbedder) GetModelName() string {
	return e.model
}

// trimToTokenLimit はテキストを指定されたトークン数に収まるようトリミングします
func (e *OpenAIEmbedder) trimToTokenLimit(text string, maxTokens int) string {
	tokens := e.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	return e.encoder.Decode(tokens[:maxTokens])
}

// インターフェース実装の確認
var _ domain.Embedder = (*OpenAIEmbedder)(nil)

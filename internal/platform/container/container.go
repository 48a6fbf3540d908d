package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/lecture-rag/internal/module/decompose/adapter/decomposer"
	decomposeapp "github.com/jinford/lecture-rag/internal/module/decompose/application"
	"github.com/jinford/lecture-rag/internal/module/ingestion/adapter/chunker"
	ingestionapp "github.com/jinford/lecture-rag/internal/module/ingestion/application"
	llmadapter "github.com/jinford/lecture-rag/internal/module/llm/adapter"
	llmdomain "github.com/jinford/lecture-rag/internal/module/llm/domain"
	"github.com/jinford/lecture-rag/internal/module/query/adapter/optimizer"
	"github.com/jinford/lecture-rag/internal/module/query/adapter/rewriter"
	"github.com/jinford/lecture-rag/internal/module/search/adapter/engine"
	"github.com/jinford/lecture-rag/internal/module/search/adapter/index"
	"github.com/jinford/lecture-rag/internal/module/search/adapter/pg"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
	"github.com/jinford/lecture-rag/internal/platform/logger"
	"github.com/jinford/lecture-rag/pkg/config"
)

// Container はアプリケーション全体の依存関係を保持する
type Container struct {
	Config         *config.Config
	Logger         *slog.Logger
	LLMClient      llmdomain.Client
	Embedder       llmdomain.Embedder
	Store          searchdomain.ChunkStore
	Embeddings     *engine.EmbeddingService
	Engine         *engine.HybridEngine
	Optimizer      *optimizer.Optimizer
	Rewriter       *rewriter.Rewriter
	Decomposer     *decomposer.Decomposer
	ExecuteService *decomposeapp.ExecuteService
	IngestService  *ingestionapp.IngestService
}

// New は設定からコンテナを生成する
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	log := logger.New(logCfg)

	rawClient, err := llmadapter.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.LLMModel)
	if err != nil {
		return nil, fmt.Errorf("LLMクライアントの生成に失敗しました: %w", err)
	}

	// すべてのLLM利用コンポーネントはレート制限付きクライアントを経由する
	llmClient := llmadapter.NewThrottledClient(rawClient, cfg.MaxRequestsPerMinute)

	embedder, err := llmadapter.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("Embedderの生成に失敗しました: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("チャンクストアの生成に失敗しました: %w", err)
	}

	embeddings := engine.NewEmbeddingService(store, embedder, log)

	searchEngine := engine.NewHybridEngine(store, embeddings, engine.Config{
		MinSimilarity:  cfg.Search.MinSimilarity,
		SemanticWeight: cfg.Search.SemanticWeight,
		AgreementBoost: cfg.Search.AgreementBoost,
		QueryCacheSize: cfg.Search.QueryCacheSize,
	}, log)

	builder := chunker.NewBuilder(
		chunker.WithSizes(cfg.Chunking.TargetSize, cfg.Chunking.MinSize),
		chunker.WithAdvanceRatio(cfg.Chunking.AdvanceRatio),
		chunker.WithOverlapWindow(cfg.Chunking.OverlapWindow),
	)

	return &Container{
		Config:         cfg,
		Logger:         log,
		LLMClient:      llmClient,
		Embedder:       embedder,
		Store:          store,
		Embeddings:     embeddings,
		Engine:         searchEngine,
		Optimizer:      optimizer.NewOptimizer(llmClient, cfg.Search.OptimizerCache, log),
		Rewriter:       rewriter.NewRewriter(llmClient, log),
		Decomposer:     decomposer.NewDecomposer(llmClient, log),
		ExecuteService: decomposeapp.NewExecuteService(searchEngine, llmClient, log),
		IngestService:  ingestionapp.NewIngestService(builder, embeddings, store, log),
	}, nil
}

// newStore は設定に応じたチャンクストアを生成する
func newStore(ctx context.Context, cfg *config.Config) (searchdomain.ChunkStore, error) {
	switch cfg.Index.Backend {
	case config.IndexBackendPostgres:
		return pg.NewChunkStore(ctx, cfg.Index.DatabaseURL, cfg.OpenAI.EmbeddingDimension)
	default:
		return index.NewFileStore(cfg.Index.FilePath)
	}
}

// Close はコンテナが保持するリソースを解放する
func (c *Container) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

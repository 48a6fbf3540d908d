package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// IndexBackendFile / IndexBackendPostgres はインデックスストアのバックエンド識別子
const (
	IndexBackendFile     = "file"
	IndexBackendPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// OpenAI設定（Embeddings + LLM）
	OpenAI OpenAIConfig

	// インデックスストア設定
	Index IndexConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// 検索エンジン設定
	Search SearchConfig

	// LLM呼び出しのレート制限（1分あたりの最大リクエスト数）
	MaxRequestsPerMinute int

	// ログ設定
	LogLevel  string // "debug" / "info" / "warn" / "error"
	LogFormat string // "json" or "text"
}

// OpenAIConfig はOpenAI API設定（Embeddings + LLM）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string // 回答生成・クエリ解析に使用するモデル名
}

// IndexConfig はチャンクインデックスの永続化設定
type IndexConfig struct {
	// Backend はストアの種類（"file" または "postgres"）
	Backend string

	// FilePath はファイルバックエンド使用時のキャッシュファイルパス
	FilePath string

	// DatabaseURL はPostgresバックエンド使用時の接続文字列
	DatabaseURL string
}

// ChunkingConfig はチャンク分割のパラメータ
type ChunkingConfig struct {
	TargetSize    int     // 目標チャンクサイズ（文字数、デフォルト: 800）
	MinSize       int     // 最小チャンクサイズ（文字数、デフォルト: 300）
	AdvanceRatio  float64 // 次チャンク開始位置の比率（デフォルト: 0.75 = 約25%オーバーラップ）
	OverlapWindow float64 // overlapWith判定の時間窓（秒、デフォルト: 60）
}

// SearchConfig は検索エンジンのパラメータ
type SearchConfig struct {
	MinSimilarity  float64 // セマンティック検索の類似度しきい値（デフォルト: 0.3）
	SemanticWeight float64 // セマンティック結果の重み（デフォルト: 1.2）
	AgreementBoost float64 // 両方式で一致した結果のブースト（デフォルト: 1.3）
	QueryCacheSize int     // クエリキャッシュの最大エントリ数（デフォルト: 100）
	OptimizerCache int     // クエリ最適化キャッシュの最大エントリ数（デフォルト: 500）
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Index: IndexConfig{
			Backend:     getEnv("INDEX_BACKEND", "file"),
			FilePath:    getEnv("INDEX_FILE_PATH", "data/index.json"),
			DatabaseURL: getEnv("INDEX_DATABASE_URL", ""),
		},
		Chunking: ChunkingConfig{
			TargetSize:    getEnvAsInt("CHUNK_TARGET_SIZE", 800),
			MinSize:       getEnvAsInt("CHUNK_MIN_SIZE", 300),
			AdvanceRatio:  getEnvAsFloat("CHUNK_ADVANCE_RATIO", 0.75),
			OverlapWindow: getEnvAsFloat("CHUNK_OVERLAP_WINDOW_SEC", 60),
		},
		Search: SearchConfig{
			MinSimilarity:  getEnvAsFloat("SEARCH_MIN_SIMILARITY", 0.3),
			SemanticWeight: getEnvAsFloat("SEARCH_SEMANTIC_WEIGHT", 1.2),
			AgreementBoost: getEnvAsFloat("SEARCH_AGREEMENT_BOOST", 1.3),
			QueryCacheSize: getEnvAsInt("SEARCH_QUERY_CACHE_SIZE", 100),
			OptimizerCache: getEnvAsInt("SEARCH_OPTIMIZER_CACHE_SIZE", 500),
		},
		MaxRequestsPerMinute: getEnvAsInt("LLM_MAX_REQUESTS_PER_MINUTE", 60),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は設定値の整合性を確認します
func (c *Config) validate() error {
	switch c.Index.Backend {
	case IndexBackendFile, IndexBackendPostgres:
	default:
		return fmt.Errorf("invalid INDEX_BACKEND: %q (must be \"file\" or \"postgres\")", c.Index.Backend)
	}

	if c.Index.Backend == IndexBackendPostgres && c.Index.DatabaseURL == "" {
		return fmt.Errorf("INDEX_DATABASE_URL is required when INDEX_BACKEND=postgres")
	}

	if c.Chunking.MinSize > c.Chunking.TargetSize {
		return fmt.Errorf("CHUNK_MIN_SIZE (%d) must not exceed CHUNK_TARGET_SIZE (%d)", c.Chunking.MinSize, c.Chunking.TargetSize)
	}

	if c.Chunking.AdvanceRatio <= 0 || c.Chunking.AdvanceRatio > 1 {
		return fmt.Errorf("CHUNK_ADVANCE_RATIO must be in (0, 1]: %f", c.Chunking.AdvanceRatio)
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

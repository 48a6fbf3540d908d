package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	ingestdomain "github.com/jinford/lecture-rag/internal/module/ingestion/domain"
	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

const (
	// DefaultMinSimilarity はセマンティック検索の類似度しきい値
	DefaultMinSimilarity = 0.3

	// DefaultSemanticWeight はセマンティック結果の重み
	// 経験的に選ばれた値であり最適である保証はない（設定で変更可能）
	DefaultSemanticWeight = 1.2

	// DefaultAgreementBoost は両方式で一致した結果のブースト係数
	// 方式間の一致を関連性のシグナルとして意図的に過大評価する
	DefaultAgreementBoost = 1.3
)

// Config は検索エンジンのパラメータ
type Config struct {
	MinSimilarity  float64
	SemanticWeight float64
	AgreementBoost float64
	QueryCacheSize int
}

// DefaultConfig はデフォルトのエンジン設定を返します
func DefaultConfig() Config {
	return Config{
		MinSimilarity:  DefaultMinSimilarity,
		SemanticWeight: DefaultSemanticWeight,
		AgreementBoost: DefaultAgreementBoost,
		QueryCacheSize: DefaultQueryCacheSize,
	}
}

// HybridEngine はセマンティック検索とキーワード検索を融合する検索エンジンです
type HybridEngine struct {
	store      searchdomain.ChunkStore
	embeddings *EmbeddingService
	queryCache *QueryCache
	config     Config
	logger     *slog.Logger
}

// NewHybridEngine は新しいHybridEngineを作成します
func NewHybridEngine(store searchdomain.ChunkStore, embeddings *EmbeddingService, config Config, logger *slog.Logger) *HybridEngine {
	if store == nil {
		panic("engine.NewHybridEngine: store is nil")
	}
	if embeddings == nil {
		panic("engine.NewHybridEngine: embeddings is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if config.MinSimilarity <= 0 {
		config.MinSimilarity = DefaultMinSimilarity
	}
	if config.SemanticWeight <= 0 {
		config.SemanticWeight = DefaultSemanticWeight
	}
	if config.AgreementBoost <= 0 {
		config.AgreementBoost = DefaultAgreementBoost
	}

	return &HybridEngine{
		store:      store,
		embeddings: embeddings,
		queryCache: NewQueryCache(config.QueryCacheSize),
		config:     config,
		logger:     logger,
	}
}

// InvalidateCache はクエリキャッシュを破棄します（インデックス更新後に呼ぶ）
func (e *HybridEngine) InvalidateCache() {
	e.queryCache.Clear()
}

// Search はセマンティック検索のみを実行します
// Embeddingサービスの失敗時は空の結果を返します（エラーにしない）
func (e *HybridEngine) Search(ctx context.Context, query string, limit int, filter searchdomain.SearchFilter) ([]*searchdomain.SearchResult, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	key := CacheKey("semantic", query, limit)
	if cached, ok := e.queryCache.Get(key); ok {
		return filterResults(cached, filter), nil
	}

	results, ok := e.semanticSearch(ctx, query, limit, searchdomain.SearchFilter{})
	for _, r := range results {
		r.Score = r.SemanticScore
		r.Reason = buildReason(r, nil)
	}

	// Embeddingサービスの障害中に得た縮退結果はキャッシュに固定しない
	if ok {
		e.queryCache.Put(key, results)
	}

	return filterResults(results, filter), nil
}

// KeywordSearch はキーワード転置インデックスのみで検索します
// Embeddingサービスが利用できない場合のフォールバックとして使えます
func (e *HybridEngine) KeywordSearch(ctx context.Context, query string, limit int, filter searchdomain.SearchFilter) ([]*searchdomain.SearchResult, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	results, matched := e.keywordSearch(ctx, query, limit, filter)
	for _, r := range results {
		r.Score = r.KeywordScore
		r.Reason = buildReason(r, matched[r.Chunk.ID])
	}

	return results, nil
}

// HybridSearch はセマンティック検索とキーワード検索を実行し、スコアを融合してランキングします
// 結果は(videoID, startTime)で重複排除されます
func (e *HybridEngine) HybridSearch(ctx context.Context, query string, limit int, filter searchdomain.SearchFilter) ([]*searchdomain.SearchResult, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	key := CacheKey("hybrid", query, limit)
	if cached, ok := e.queryCache.Get(key); ok {
		return filterResults(cached, filter), nil
	}

	// 両方式を実行（候補は広めに取り、融合後にlimitへ切り詰める）
	semantic, semanticOK := e.semanticSearch(ctx, query, limit*2, searchdomain.SearchFilter{})
	keyword, matched := e.keywordSearch(ctx, query, limit*2, searchdomain.SearchFilter{})

	// (videoID, startTime)をキーとして融合（同じ瞬間をカバーするオーバーラップチャンクは1件に集約）
	fused := make(map[string]*searchdomain.SearchResult)

	for _, r := range semantic {
		k := dedupKey(r.Chunk)
		existing, ok := fused[k]
		if !ok || r.SemanticScore > existing.SemanticScore {
			r.Score = r.SemanticScore * e.config.SemanticWeight
			fused[k] = r
		}
	}

	for _, r := range keyword {
		k := dedupKey(r.Chunk)
		existing, ok := fused[k]
		if !ok {
			r.Score = r.KeywordScore
			fused[k] = r
			continue
		}

		if existing.SemanticScore > 0 {
			// 両方式で発見: 素点の大きい方にブーストを掛ける（平均ではなく乗算ボーナス）
			existing.KeywordScore = max(existing.KeywordScore, r.KeywordScore)
			existing.Score = max(existing.SemanticScore, existing.KeywordScore) * e.config.AgreementBoost
			continue
		}

		// キーワード側同士の重複排除: スコアの高い方を残すだけでブーストは掛けない
		if r.KeywordScore > existing.KeywordScore {
			r.Score = r.KeywordScore
			fused[k] = r
		}
	}

	results := make([]*searchdomain.SearchResult, 0, len(fused))
	for _, r := range fused {
		r.Reason = buildReason(r, matched[r.Chunk.ID])
		results = append(results, r)
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	// セマンティック側が縮退していた結果はキャッシュに固定しない
	if semanticOK {
		e.queryCache.Put(key, results)
	}

	return filterResults(results, filter), nil
}

// semanticSearch はクエリEmbeddingと全チャンクEmbeddingのコサイン類似度で検索します
// Embedding取得に失敗した場合は空の結果とfalseを返します（呼び出し側がキーワード検索へフォールバックできる）
func (e *HybridEngine) semanticSearch(ctx context.Context, query string, limit int, filter searchdomain.SearchFilter) ([]*searchdomain.SearchResult, bool) {
	queryVector, err := e.embeddings.EmbedQuery(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, returning empty semantic results", "error", err)
		return nil, false
	}

	chunks, err := e.store.AllChunks(ctx)
	if err != nil {
		e.logger.Warn("failed to list chunks", "error", err)
		return nil, false
	}

	var results []*searchdomain.SearchResult
	for _, chunk := range chunks {
		if !filter.Matches(chunk) {
			continue
		}

		vector := chunk.Embedding
		if len(vector) == 0 {
			// チャンクにEmbeddingが添付されていない場合はキャッシュを参照
			cached, ok, cacheErr := e.store.GetEmbedding(ctx, chunk.Metadata.ContentHash)
			if cacheErr != nil || !ok {
				continue
			}
			vector = cached
		}

		score := CosineSimilarity(queryVector, vector)
		if score < e.config.MinSimilarity {
			continue
		}

		results = append(results, &searchdomain.SearchResult{
			Chunk:         chunk,
			SemanticScore: score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].SemanticScore != results[j].SemanticScore {
			return results[i].SemanticScore > results[j].SemanticScore
		}
		return results[i].Chunk.Metadata.QualityScore > results[j].Chunk.Metadata.QualityScore
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, true
}

// keywordSearch は転置インデックスでクエリ語のヒット数を集計します
// 戻り値の2つ目はチャンクIDごとのマッチ語リストです（説明文の生成に使用）
func (e *HybridEngine) keywordSearch(ctx context.Context, query string, limit int, filter searchdomain.SearchFilter) ([]*searchdomain.SearchResult, map[string][]string) {
	words := tokenize(query)
	if len(words) == 0 {
		return nil, nil
	}

	hits := make(map[string]int)
	matched := make(map[string][]string)

	for _, word := range words {
		ids, err := e.store.KeywordLookup(ctx, word)
		if err != nil {
			e.logger.Warn("keyword lookup failed", "keyword", word, "error", err)
			continue
		}
		for _, id := range ids {
			hits[id]++
			matched[id] = append(matched[id], word)
		}
	}

	var results []*searchdomain.SearchResult
	for id, count := range hits {
		chunk, ok, err := e.store.GetChunk(ctx, id)
		if err != nil || !ok {
			continue
		}
		if !filter.Matches(chunk) {
			continue
		}

		// クエリ語数で正規化した[0,1]のスコア
		results = append(results, &searchdomain.SearchResult{
			Chunk:        chunk,
			KeywordScore: float64(count) / float64(len(words)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].KeywordScore != results[j].KeywordScore {
			return results[i].KeywordScore > results[j].KeywordScore
		}
		return results[i].Chunk.Metadata.QualityScore > results[j].Chunk.Metadata.QualityScore
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, matched
}

// dedupKey は(videoID, startTime)による重複排除キーを返します
func dedupKey(chunk *ingestdomain.Chunk) string {
	return fmt.Sprintf("%s@%.3f", chunk.Metadata.VideoID, chunk.Metadata.StartTime)
}

// sortResults は融合スコア降順（同点は品質スコア降順、次いでID昇順）でソートします
func sortResults(results []*searchdomain.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Metadata.QualityScore != results[j].Chunk.Metadata.QualityScore {
			return results[i].Chunk.Metadata.QualityScore > results[j].Chunk.Metadata.QualityScore
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// filterResults はキャッシュ済み結果へ事後フィルタを適用します
func filterResults(results []*searchdomain.SearchResult, filter searchdomain.SearchFilter) []*searchdomain.SearchResult {
	if filter.Course == "" && filter.Section == "" {
		return results
	}

	filtered := make([]*searchdomain.SearchResult, 0, len(results))
	for _, r := range results {
		if filter.Matches(r.Chunk) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// buildReason は検索結果の根拠説明文を組み立てます（情報提供のみ、ランキング非使用）
func buildReason(r *searchdomain.SearchResult, matchedWords []string) string {
	var parts []string

	switch {
	case r.SemanticScore >= 0.7:
		parts = append(parts, "High semantic similarity")
	case r.SemanticScore > 0:
		parts = append(parts, "Semantic similarity")
	}

	if len(matchedWords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(matchedWords, ", "))
	}

	if len(r.Chunk.Metadata.Topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(r.Chunk.Metadata.Topics, ", "))
	}

	if len(parts) == 0 {
		return "Keyword match"
	}

	return strings.Join(parts, " | ")
}

// normalizeQuery はクエリを正規化します（小文字化・空白の圧縮）
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// tokenize はクエリを検索語に分割します
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))

	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f == "" {
			continue
		}
		words = append(words, f)
	}

	return words
}

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

// DefaultQueryCacheSize はクエリキャッシュのデフォルト容量
const DefaultQueryCacheSize = 100

// QueryCache は(正規化クエリ, limit)ごとの検索結果を保持する容量制限付きキャッシュです
// 容量超過時は最も古く挿入されたエントリを追い出します（挿入順、アクセス順ではない）
type QueryCache struct {
	mu sync.Mutex

	capacity int
	order    []string
	entries  map[string][]*searchdomain.SearchResult
}

// NewQueryCache は新しいQueryCacheを作成します
func NewQueryCache(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultQueryCacheSize
	}

	return &QueryCache{
		capacity: capacity,
		entries:  make(map[string][]*searchdomain.SearchResult),
	}
}

// CacheKey は検索モード・正規化クエリ・limitからキャッシュキーを計算します
func CacheKey(mode, normalizedQuery string, limit int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", mode, normalizedQuery, limit)))
	return hex.EncodeToString(sum[:])
}

// Get はキャッシュから結果を取得します
func (c *QueryCache) Get(key string) ([]*searchdomain.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, ok := c.entries[key]
	return results, ok
}

// Put は結果をキャッシュへ登録します（容量超過時は最古エントリを追い出す）
func (c *QueryCache) Put(key string, results []*searchdomain.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = results
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.order = append(c.order, key)
	c.entries[key] = results
}

// Clear は全エントリを破棄します
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.entries = make(map[string][]*searchdomain.SearchResult)
}

// Len は現在のエントリ数を返します
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

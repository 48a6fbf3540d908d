package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	searchdomain "github.com/jinford/lecture-rag/internal/module/search/domain"
)

func TestQueryCache_PutGet(t *testing.T) {
	cache := NewQueryCache(10)
	key := CacheKey("hybrid", "what is a closure", 10)

	results := []*searchdomain.SearchResult{{Score: 0.9}}
	cache.Put(key, results)

	got, ok := cache.Get(key)
	assert.True(t, ok)
	assert.Equal(t, results, got)
}

func TestQueryCache_FIFOEviction(t *testing.T) {
	// 容量超過時は最も古く挿入されたエントリから追い出される（アクセス順ではない）
	cache := NewQueryCache(2)

	k1 := CacheKey("hybrid", "first", 10)
	k2 := CacheKey("hybrid", "second", 10)
	k3 := CacheKey("hybrid", "third", 10)

	cache.Put(k1, nil)
	cache.Put(k2, nil)

	// k1へのアクセスはFIFOの追い出し順に影響しない
	_, _ = cache.Get(k1)

	cache.Put(k3, nil)

	_, ok := cache.Get(k1)
	assert.False(t, ok, "最古エントリは追い出される")
	_, ok = cache.Get(k2)
	assert.True(t, ok)
	_, ok = cache.Get(k3)
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestCacheKey_Distinct(t *testing.T) {
	// モード・クエリ・limitのいずれかが異なればキーも異なる
	base := CacheKey("hybrid", "closure", 10)
	assert.NotEqual(t, base, CacheKey("semantic", "closure", 10))
	assert.NotEqual(t, base, CacheKey("hybrid", "scope", 10))
	assert.NotEqual(t, base, CacheKey("hybrid", "closure", 5))
}

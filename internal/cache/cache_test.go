package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"medportal/internal/core"
)

var _ core.Cache = (*LRUCache)(nil)

func TestLRUCache_BasicSetGet(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	value, found := cache.Get("key1")
	if !found {
		t.Error("Expected to find key1")
	}
	if value != "value1" {
		t.Errorf("Expected 'value1', got '%v'", value)
	}
}

func TestLRUCache_GetNonExistent(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	_, found := cache.Get("nonexistent")
	if found {
		t.Error("Should not find nonexistent key")
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key", "value", 100*time.Millisecond)
	_, found := cache.Get("key")
	if !found {
		t.Error("Key should be found immediately after set")
	}
	time.Sleep(150 * time.Millisecond)
	_, found = cache.Get("key")
	if found {
		t.Error("Key should be expired")
	}
	if cache.Len() != 0 {
		t.Error("Expired key should be removed on read")
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewCacheWithCapacity(2)
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Set("key3", "value3", 1*time.Hour)
	if _, found := cache.Get("key1"); found {
		t.Error("key1 should be evicted")
	}
	if _, found := cache.Get("key2"); !found {
		t.Error("key2 should exist")
	}
	if _, found := cache.Get("key3"); !found {
		t.Error("key3 should exist")
	}
}

func TestLRUCache_LRUOrder(t *testing.T) {
	cache := NewCacheWithCapacity(2)
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Get("key1")
	cache.Set("key3", "value3", 1*time.Hour)
	if _, found := cache.Get("key2"); found {
		t.Error("key2 should be evicted (least recently used)")
	}
	if _, found := cache.Get("key1"); !found {
		t.Error("key1 should exist")
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	const numGoroutines = 100
	const numOperations = 100
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := string(rune('a' + (id+j)%26))
				cache.Set(key, id*numOperations+j, 1*time.Hour)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				cache.Get(string(rune('a' + (id+j)%26)))
			}
		}(i)
	}
	wg.Wait()
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key", "value1", 1*time.Hour)
	cache.Set("key", "value2", 1*time.Hour)
	v, _ := cache.Get("key")
	if v != "value2" {
		t.Errorf("Expected 'value2', got %v", v)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 item, got %d", cache.Len())
	}
}

func TestLRUCache_NonPositiveTTL(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	for _, ttl := range []time.Duration{0, -1 * time.Second} {
		cache.Set("key", "value", ttl)
		if _, found := cache.Get("key"); found {
			t.Errorf("Key with TTL %s should be immediately expired", ttl)
		}
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key1", "value1", 10*time.Millisecond)
	cache.Set("key2", "value2", 1*time.Hour)
	time.Sleep(30 * time.Millisecond)
	cache.cleanupExpired()
	if cache.Len() != 1 {
		t.Errorf("Expected 1 item after sweep, got %d", cache.Len())
	}
	if _, found := cache.Get("key2"); !found {
		t.Error("key2 should still exist")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewCache()
	defer cache.Stop()
	cache.Set("key1", "value1", 1*time.Hour)
	cache.Set("key2", "value2", 1*time.Hour)
	cache.Delete("key1")
	cache.Delete("missing")
	if _, found := cache.Get("key1"); found {
		t.Error("key1 应该被删除")
	}
	if _, found := cache.Get("key2"); !found {
		t.Error("key2 应该保留")
	}
}

func TestCatalogKey(t *testing.T) {
	k1 := CatalogKey("https://a", "secret")
	k2 := CatalogKey("https://a", "secret")
	k3 := CatalogKey("https://a", "other")
	if k1 != k2 {
		t.Error("相同输入应该生成相同的缓存键")
	}
	if k1 == k3 {
		t.Error("不同密钥应该生成不同的缓存键")
	}
	if strings.Contains(k1, "secret") {
		t.Error("缓存键不应包含明文密钥")
	}
	if !strings.HasPrefix(k1, "catalog:"+core.CacheKeyVersion+":") {
		t.Errorf("缓存键前缀错误: %s", k1)
	}
}

func TestTruncateCacheKey(t *testing.T) {
	if got := TruncateCacheKey("abcdef", 3); got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}
	if got := TruncateCacheKey("ab", 3); got != "ab" {
		t.Errorf("expected ab, got %s", got)
	}
}

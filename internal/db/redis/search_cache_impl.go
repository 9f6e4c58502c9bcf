package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// SearchCache 检索结果 Redis 缓存
// 纯优化组件：任何 Redis 故障都降级为缓存未命中，不影响检索本身。
// 入库/删除后由调用方 InvalidateAll，保证不会吐出已删除文档的分块。
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSearchCache 创建检索缓存
func NewSearchCache(rdb *redis.Client, ttlSeconds int) *SearchCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SearchCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "docqa:search:",
	}
}

// Get 从缓存获取检索结果
func (c *SearchCache) Get(ctx context.Context, query string, opts rag.SearchOptions) ([]rag.ScoredChunk, bool) {
	key := c.cacheKey(query, opts)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var chunks []rag.ScoredChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		applog.Warn("[RAG/Cache] Failed to unmarshal cached result", "error", err)
		return nil, false
	}

	applog.Debug("[RAG/Cache] Hit", "key", key)
	return chunks, true
}

// Set 写入检索结果到缓存
func (c *SearchCache) Set(ctx context.Context, query string, opts rag.SearchOptions, chunks []rag.ScoredChunk) {
	key := c.cacheKey(query, opts)
	data, err := json.Marshal(chunks)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[RAG/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除所有检索缓存
func (c *SearchCache) InvalidateAll(ctx context.Context) {
	pattern := c.prefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
		applog.Info("[RAG/Cache] All cache invalidated", "keys_deleted", len(keys))
	}
}

// cacheKey 生成缓存 key = hash(query + topk + min_score)
func (c *SearchCache) cacheKey(query string, opts rag.SearchOptions) string {
	raw := fmt.Sprintf("%s|%d|%.6f", query, opts.TopK, opts.MinScore)
	sum := sha256.Sum256([]byte(raw))
	return c.prefix + fmt.Sprintf("%x", sum[:16])
}

package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache backend names.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const redisKeyPrefix = "amanrag:search:"

// ResultCache stores search responses by request key. Keys embed the index
// generation, so entries from an older snapshot are simply never asked for
// again and age out.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response)
	Close() error
}

// cacheKey hashes everything that can change a response.
func cacheKey(p plan, generation, epoch uint64) string {
	raw := strings.Join([]string{
		p.query,
		strconv.Itoa(p.topK),
		strconv.FormatFloat(p.threshold, 'g', -1, 64),
		string(p.mode),
		string(p.policy),
		strconv.FormatBool(p.expand),
		strconv.FormatUint(generation, 10),
		strconv.FormatUint(epoch, 10),
	}, "\x00")
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:16])
}

// LRUCache is an in-process cache with a size bound and per-entry TTL.
type LRUCache struct {
	lru *expirable.LRU[string, *Response]
}

// NewLRUCache creates a cache of size entries that expire after ttl.
// A zero ttl disables expiry.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1000
	}
	return &LRUCache{lru: expirable.NewLRU[string, *Response](size, nil, ttl)}
}

// Get returns a copy of the cached response.
func (c *LRUCache) Get(_ context.Context, key string) (*Response, bool) {
	resp, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	cp := *resp
	cp.Results = append([]Result(nil), resp.Results...)
	return &cp, true
}

// Set stores a copy of resp.
func (c *LRUCache) Set(_ context.Context, key string, resp *Response) {
	cp := *resp
	cp.Results = append([]Result(nil), resp.Results...)
	c.lru.Add(key, &cp)
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

// Close purges the cache.
func (c *LRUCache) Close() error {
	c.lru.Purge()
	return nil
}

// RedisConfig configures the shared result cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares results between amanrag processes through Redis.
// Redis errors degrade to cache misses and are logged, never returned.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection with a PING.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{
		rdb:    rdb,
		ttl:    cfg.TTL,
		logger: slog.Default().With("component", "result-cache"),
	}, nil
}

// Get fetches and decodes a cached response.
func (c *RedisCache) Get(ctx context.Context, key string) (*Response, bool) {
	data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache_get_failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache_decode_failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	return &resp, true
}

// Set encodes and stores resp with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache_encode_failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache_set_failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Close closes the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

var (
	_ ResultCache = (*LRUCache)(nil)
	_ ResultCache = (*RedisCache)(nil)
)

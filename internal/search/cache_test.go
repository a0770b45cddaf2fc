package search

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	p := plan{query: "营销", topK: 10, mode: MethodHybrid, policy: PolicyWeighted, expand: true}
	base := cacheKey(p, 1, 0)

	with := func(mutate func(*plan)) plan {
		q := p
		mutate(&q)
		return q
	}

	assert.Equal(t, base, cacheKey(p, 1, 0))
	assert.NotEqual(t, base, cacheKey(p, 2, 0), "generation")
	assert.NotEqual(t, base, cacheKey(p, 1, 1), "synonym epoch")
	assert.NotEqual(t, base, cacheKey(with(func(q *plan) { q.policy = PolicyRRF }), 1, 0), "policy")
	assert.NotEqual(t, base, cacheKey(with(func(q *plan) { q.mode = MethodBM25 }), 1, 0), "mode")
	assert.NotEqual(t, base, cacheKey(with(func(q *plan) { q.expand = false }), 1, 0), "expand")
	assert.NotEqual(t, base, cacheKey(with(func(q *plan) { q.topK = 5 }), 1, 0), "top_k")
	assert.NotEqual(t, base, cacheKey(with(func(q *plan) { q.threshold = 0.1 }), 1, 0), "threshold")
}

func TestLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, 0)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	resp := &Response{Results: []Result{{FileID: "a", Score: 1}}, Total: 1, Method: MethodBM25}
	c.Set(ctx, "k", resp)

	// Mutating the stored or returned value does not leak into the cache.
	resp.Results[0].FileID = "mutated"
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "a", got.Results[0].FileID)
	got.Results[0].FileID = "again"
	got2, _ := c.Get(ctx, "k")
	assert.Equal(t, "a", got2.Results[0].FileID)
}

func TestLRUCache_EvictsAndExpires(t *testing.T) {
	ctx := context.Background()

	t.Run("size bound", func(t *testing.T) {
		c := NewLRUCache(2, 0)
		c.Set(ctx, "a", &Response{})
		c.Set(ctx, "b", &Response{})
		c.Set(ctx, "c", &Response{})
		assert.Equal(t, 2, c.Len())
		_, ok := c.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("ttl", func(t *testing.T) {
		c := NewLRUCache(2, 20*time.Millisecond)
		c.Set(ctx, "a", &Response{})
		time.Sleep(50 * time.Millisecond)
		_, ok := c.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("close purges", func(t *testing.T) {
		c := NewLRUCache(0, 0)
		c.Set(ctx, "a", &Response{})
		require.NoError(t, c.Close())
		assert.Zero(t, c.Len())
	})
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	// Given: an address nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	// When
	_, err = NewRedisCache(context.Background(), RedisConfig{Addr: addr})

	// Then: the PING fails fast
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

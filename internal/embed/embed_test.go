package embed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder_DeterministicUnitVectors(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "小红书营销教程")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "小红书营销教程")
	require.NoError(t, err)

	assert.Len(t, a, DefaultHashDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashEmbedder_SharedTokensAreCloser(t *testing.T) {
	// Given: a query and two candidate texts
	e := NewHashEmbedder(512)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "小红书营销")
	near, _ := e.Embed(ctx, "小红书营销技巧")
	far, _ := e.Embed(ctx, "weather report tomorrow")

	// Then: overlapping text has the higher cosine similarity
	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestHashEmbedder_EmptyTextIsZero(t *testing.T) {
	vec, err := NewHashEmbedder(8).Embed(context.Background(), "123 ???")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}

func TestHashEmbedder_Closed(t *testing.T) {
	e := NewHashEmbedder(8)
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestHashEmbedder_Batch(t *testing.T) {
	e := NewHashEmbedder(16)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, "hash-16", e.ModelName())
}

// countingEmbedder records calls to the inner embedder.
type countingEmbedder struct {
	*HashEmbedder
	single int
	batch  [][]string
	fail   bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.single++
	if c.fail {
		return nil, errors.New("model down")
	}
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch = append(c.batch, texts)
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_CachesSingleQueries(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "营销")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "营销")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.single)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16), fail: true}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "营销")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	// Given: one text already cached
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	_, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	// When: embedding a batch that includes it
	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})

	// Then: only the misses reach the inner embedder, order is preserved
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, [][]string{{"b", "c"}}, inner.batch)
	direct, _ := inner.HashEmbedder.Embed(ctx, "c")
	assert.Equal(t, direct, vecs[2])
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	c := NewCachedEmbedder(NewHashEmbedder(8), 2)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_, err := c.Embed(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}

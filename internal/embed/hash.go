package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/Aman-CERP/amanrag/internal/store"
)

const (
	// DefaultHashDimensions is the vector size of HashEmbedder.
	DefaultHashDimensions = 256

	tokenWeight  = 0.7
	bigramWeight = 0.3
)

// HashEmbedder maps text to a normalized vector by hashing its tokens and
// adjacent-token bigrams into a fixed number of buckets with FNV-64. It
// uses the same tokenizer as the lexical index, so a CJK phrase contributes
// its characters and its character pairs.
type HashEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// NewHashEmbedder creates a hash embedder. Non-positive dims use the default.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed generates the embedding for text. Text without tokens maps to the
// zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	tokens := store.Tokenize(text)
	for i, tok := range tokens {
		vec[bucket(tok, e.dims)] += tokenWeight
		if i > 0 {
			vec[bucket(tokens[i-1]+"\x00"+tok, e.dims)] += bigramWeight
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dims)
}

// Close marks the embedder closed.
func (e *HashEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// bucket uses FNV-64a to map s to [0, size).
func bucket(s string, size int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

var _ Embedder = (*HashEmbedder)(nil)

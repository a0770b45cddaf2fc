package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// DefaultVectorStoreConfig returns coder/hnsw's recommended parameters.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// VectorStore is a cosine HNSW graph keyed directly by doc_index, so hits
// need no id translation. One store serves one snapshot; a rebuild creates
// a new store.
type VectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig
	count  int
}

// NewVectorStore creates an empty store.
func NewVectorStore(cfg VectorStoreConfig) *VectorStore {
	def := DefaultVectorStoreConfig(cfg.Dimensions)
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorStore{graph: graph, config: cfg}
}

// Add inserts one vector per doc_index. Zero vectors carry no direction and
// are skipped; such documents are simply unreachable by dense search.
func (s *VectorStore) Add(docIndexes []int, vectors [][]float32) error {
	if len(docIndexes) != len(vectors) {
		return fmt.Errorf("doc indexes and vectors length mismatch: %d vs %d", len(docIndexes), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return dimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, idx := range docIndexes {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if !normalizeInPlace(vec) {
			continue
		}
		s.graph.Add(hnsw.MakeNode(uint64(idx), vec))
		s.count++
	}
	return nil
}

// Search returns the k nearest documents with similarity 1 - d/2, which
// maps cosine distance [0,2] onto [0,1].
func (s *VectorStore) Search(ctx context.Context, query []float32, k int) ([]RankedHit, error) {
	if len(query) != s.config.Dimensions {
		return nil, dimensionMismatch(s.config.Dimensions, len(query))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 || k <= 0 {
		return []RankedHit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if !normalizeInPlace(q) {
		return []RankedHit{}, nil
	}

	nodes := s.graph.Search(q, k)
	hits := make([]RankedHit, 0, len(nodes))
	for _, node := range nodes {
		d := float64(s.graph.Distance(q, node.Value))
		hits = append(hits, RankedHit{
			DocIndex: int(node.Key),
			Score:    clamp01(1 - d/2),
		})
	}
	sortHits(hits)
	return hits, nil
}

// Len returns the number of stored vectors.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Dimensions returns the configured vector dimension.
func (s *VectorStore) Dimensions() int {
	return s.config.Dimensions
}

func dimensionMismatch(expected, got int) error {
	return amerrors.Newf(amerrors.ErrCodeDimensionMismatch,
		"dimension mismatch: expected %d, got %d", expected, got)
}

// normalizeInPlace scales v to unit length and reports false for a zero vector.
func normalizeInPlace(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return true
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

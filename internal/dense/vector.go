package dense

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// embedBatchSize bounds a single EmbedBatch call during Stage.
const embedBatchSize = 64

// VectorAdapter is the local dense backend: documents are embedded with an
// Embedder and searched through an HNSW graph keyed by doc_index.
type VectorAdapter struct {
	embedder embed.Embedder
	config   store.VectorStoreConfig
	snap     atomic.Pointer[store.VectorStore]
}

// NewVectorAdapter creates an adapter with no snapshot.
func NewVectorAdapter(embedder embed.Embedder, cfg store.VectorStoreConfig) *VectorAdapter {
	cfg.Dimensions = embedder.Dimensions()
	return &VectorAdapter{embedder: embedder, config: cfg}
}

// Stage embeds docs into a new graph. The commit swaps it in.
func (v *VectorAdapter) Stage(ctx context.Context, docs []store.Document) (func(), error) {
	vs := store.NewVectorStore(v.config)

	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))

		texts := make([]string, 0, end-start)
		keys := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			texts = append(texts, docs[i].SearchText())
			keys = append(keys, i)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs, err := v.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed documents %d-%d: %w", start, end-1, err)
		}
		if err := vs.Add(keys, vecs); err != nil {
			return nil, err
		}
	}

	return func() { v.snap.Store(vs) }, nil
}

// Search embeds query and searches the live graph.
func (v *VectorAdapter) Search(ctx context.Context, query string, topK int) ([]store.RankedHit, error) {
	vs := v.snap.Load()
	if vs == nil {
		return nil, amerrors.IndexNotBuilt("dense")
	}
	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vs.Search(ctx, vec, topK)
}

// Len returns the number of vectors in the live graph.
func (v *VectorAdapter) Len() int {
	if vs := v.snap.Load(); vs != nil {
		return vs.Len()
	}
	return 0
}

var (
	_ Adapter = (*VectorAdapter)(nil)
	_ Builder = (*VectorAdapter)(nil)
)

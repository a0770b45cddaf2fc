package search

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanrag/internal/dense"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// PassRunner runs one fused pass for one query text.
type PassRunner interface {
	Search(ctx context.Context, query string, limit int) ([]FusedHit, error)
}

// HybridRetriever runs one fused pass: both retrievers are probed with the
// probe window and the fused ranking is truncated to the pass limit.
type HybridRetriever struct {
	lexical     store.LexicalIndex
	dense       dense.Adapter
	fuser       *Fuser
	probeWindow int
}

// NewHybridRetriever creates a retriever over one snapshot.
func NewHybridRetriever(lexical store.LexicalIndex, denseAdapter dense.Adapter, fuser *Fuser, probeWindow int) *HybridRetriever {
	if probeWindow <= 0 {
		probeWindow = DefaultProbeWindow
	}
	return &HybridRetriever{
		lexical:     lexical,
		dense:       denseAdapter,
		fuser:       fuser,
		probeWindow: probeWindow,
	}
}

// Search fuses the lexical and dense rankings for query. The retrievers are
// asked for max(probe window, limit) hits so a large limit is never starved.
//
// An empty or unbuilt lexical index contributes an empty list. Any other
// error, including every dense failure, fails the pass.
func (h *HybridRetriever) Search(ctx context.Context, query string, limit int) ([]FusedHit, error) {
	probe := max(h.probeWindow, limit)

	lex, err := h.lexical.Search(ctx, query, probe)
	if err != nil {
		if !amerrors.IsEmptyIndex(err) {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		lex = nil
	}

	vec, err := h.dense.Search(ctx, query, probe)
	if err != nil {
		return nil, err
	}

	return h.fuser.Fuse(lex, vec, limit), nil
}

var _ PassRunner = (*HybridRetriever)(nil)

// Package dense is the boundary to dense (vector) retrieval.
//
// The core only consumes the Adapter contract: a query string in, an
// ordered list of (doc_index, similarity in [0,1]) out, best first. Mapping
// native vector ids into the current snapshot's doc_index space is the
// adapter's job. Calls are blocking and run on a bounded worker pool with a
// timeout and a circuit breaker; every failure surfaces as a typed error so
// the orchestrator can fall back.
package dense

import (
	"context"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Adapter searches a dense index by query text.
type Adapter interface {
	// Search returns up to topK hits sorted by non-increasing similarity.
	Search(ctx context.Context, query string, topK int) ([]store.RankedHit, error)
}

// Builder is implemented by adapters that index the corpus themselves.
// doc_index is the position in docs.
//
// Stage builds the new snapshot without publishing it. The returned commit
// publishes it and must be called at most once; dropping it discards the
// staged work. This lets a caller publish the dense and lexical sides of a
// rebuild together.
type Builder interface {
	Stage(ctx context.Context, docs []store.Document) (commit func(), err error)
}

// Build stages docs on b and commits immediately.
func Build(ctx context.Context, b Builder, docs []store.Document) error {
	commit, err := b.Stage(ctx, docs)
	if err != nil {
		return err
	}
	commit()
	return nil
}

// AdapterFunc lets a plain function serve as an Adapter.
type AdapterFunc func(ctx context.Context, query string, topK int) ([]store.RankedHit, error)

// Search calls f.
func (f AdapterFunc) Search(ctx context.Context, query string, topK int) ([]store.RankedHit, error) {
	return f(ctx, query, topK)
}

// Disabled is the adapter of the "none" backend. Every search fails with a
// dense retrieval error, so callers that ignore Enabled still degrade to
// lexical-only results.
type Disabled struct{}

// Search always fails.
func (Disabled) Search(context.Context, string, int) ([]store.RankedHit, error) {
	return nil, amerrors.New(amerrors.ErrCodeDenseRetrieval, "dense retrieval is disabled", nil).
		WithDetail("backend", BackendNone)
}

// Enabled reports whether a is a usable adapter.
func Enabled(a Adapter) bool {
	if a == nil {
		return false
	}
	_, disabled := a.(Disabled)
	return !disabled
}

package search

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultVariantParallelism caps concurrent variant passes.
const DefaultVariantParallelism = 4

// MultiPathRetriever runs a fused pass for the original query and, when
// expansion is on, for every synonym variant, then merges per document.
//
// The seed pass keeps 2×topK fused hits and each variant pass keeps topK,
// favoring precision on the original query. A document can only appear in
// the output if some pass surfaced it within that pass's limit; recall is
// bounded by the pass windows, not a full corpus re-score.
type MultiPathRetriever struct {
	pass        PassRunner
	expander    *QueryExpander
	single      *SinglePath
	parallelism int64
}

// NewMultiPathRetriever creates an orchestrator. single provides the
// fallback used when the seed pass fails.
func NewMultiPathRetriever(pass PassRunner, expander *QueryExpander, single *SinglePath, parallelism int) *MultiPathRetriever {
	if parallelism <= 0 {
		parallelism = DefaultVariantParallelism
	}
	if expander == nil {
		expander = NewQueryExpander(nil)
	}
	return &MultiPathRetriever{
		pass:        pass,
		expander:    expander,
		single:      single,
		parallelism: int64(parallelism),
	}
}

// MultiPathResult is the outcome of a multi-path search.
type MultiPathResult struct {
	Hits   []Hit
	Method Method

	// Degraded lists the variant passes that failed and contributed nothing.
	Degraded []VariantFailure
}

// Search returns at most topK merged hits. The method is MethodMultiPath
// with expansion, MethodHybrid without, or the single-path method used
// after a seed failure. A failed variant pass only loses its own
// contribution and is reported in Degraded.
func (m *MultiPathRetriever) Search(ctx context.Context, query string, topK int, expand bool) (MultiPathResult, error) {
	res := MultiPathResult{Hits: []Hit{}, Method: MethodHybrid}
	if expand {
		res.Method = MethodMultiPath
	}
	if topK <= 0 {
		return res, nil
	}

	seed, err := m.pass.Search(ctx, query, 2*topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		hits, method, err := m.single.Fallback(ctx, query, topK, err)
		return MultiPathResult{Hits: hits, Method: method}, err
	}

	agg := newAggregate()
	agg.merge(query, seed)

	if expand {
		variants := m.expander.Expand(query)[1:]
		passes, failures, err := m.runVariants(ctx, variants, topK)
		if err != nil {
			return res, err
		}
		for i, hits := range passes {
			agg.merge(variants[i], hits)
		}
		res.Degraded = failures
	}

	res.Hits = agg.ranked(topK)
	return res, nil
}

// runVariants runs variant passes with bounded parallelism. Results are
// indexed by variant so the merge happens serially in variant order, and
// failures come back in variant order too.
func (m *MultiPathRetriever) runVariants(ctx context.Context, variants []string, topK int) ([][]FusedHit, []VariantFailure, error) {
	results := make([][]FusedHit, len(variants))
	if len(variants) == 0 {
		return results, nil, nil
	}
	errs := make([]error, len(variants))

	sem := semaphore.NewWeighted(m.parallelism)
	var g errgroup.Group

	for i, variant := range variants {
		if err := sem.Acquire(ctx, 1); err != nil {
			_ = g.Wait()
			return nil, nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			hits, err := m.pass.Search(ctx, variant, topK)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var failures []VariantFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, m.variantFailed(variants[i], err))
		}
	}
	return results, failures, nil
}

func (m *MultiPathRetriever) variantFailed(variant string, err error) VariantFailure {
	rec := m.single.recorder()
	rec.VariantFailure()
	if amerrors.IsDenseFailure(err) {
		rec.DenseFailure()
	}
	m.single.logger().Warn("multi_path_variant_failed",
		append([]any{slog.String("variant", variant)}, amerrors.LogAttrs(err)...)...)

	code := amerrors.GetCode(err)
	if code == "" {
		code = amerrors.ErrCodeSearchFailed
	}
	return VariantFailure{Variant: variant, Code: code, Message: err.Error()}
}

// aggregate accumulates per-document results across passes.
type aggregate struct {
	byDoc map[int]*Hit
}

func newAggregate() *aggregate {
	return &aggregate{byDoc: make(map[int]*Hit)}
}

// merge folds one pass into the aggregate. A strictly higher score replaces
// the whole stored payload, not just the number; every hit counts a match.
func (a *aggregate) merge(variant string, hits []FusedHit) {
	for _, h := range hits {
		cur, ok := a.byDoc[h.DocIndex]
		if !ok {
			a.byDoc[h.DocIndex] = &Hit{FusedHit: h, MatchCount: 1, Variant: variant}
			continue
		}
		cur.MatchCount++
		if h.Score > cur.Score {
			cur.FusedHit = h
			cur.Variant = variant
		}
	}
}

// ranked returns hits by descending score, then match count, then
// ascending doc_index, truncated to topK.
func (a *aggregate) ranked(topK int) []Hit {
	out := make([]Hit, 0, len(a.byDoc))
	for _, h := range a.byDoc {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].DocIndex < out[j].DocIndex
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

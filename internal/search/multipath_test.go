package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/dense"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// fakePass returns canned fused hits per query and records pass limits.
type fakePass struct {
	mu      sync.Mutex
	results map[string][]FusedHit
	errs    map[string]error
	limits  map[string]int
}

func newFakePass() *fakePass {
	return &fakePass{
		results: make(map[string][]FusedHit),
		errs:    make(map[string]error),
		limits:  make(map[string]int),
	}
}

func (f *fakePass) Search(_ context.Context, query string, limit int) ([]FusedHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[query] = limit
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

// countingRecorder records engine events for assertions.
type countingRecorder struct {
	mu          sync.Mutex
	searches    []string
	fallbacks   []string
	dense       int
	variants    int
	cacheHits   int
	cacheMisses int
	rebuilds    int
	rebuildErrs int
}

func (r *countingRecorder) SearchCompleted(ev SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, string(ev.Method))
}

func (r *countingRecorder) Fallback(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, reason)
}

func (r *countingRecorder) DenseFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dense++
}

func (r *countingRecorder) VariantFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants++
}

func (r *countingRecorder) CacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
}

func (r *countingRecorder) IndexRebuilt(_ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuilds++
	if err != nil {
		r.rebuildErrs++
	}
}

func marketingExpander() *QueryExpander {
	table := NewSynonymTable()
	table.Set("小红书", "RED", "种草平台")
	return NewQueryExpander(table)
}

func testDocs() []store.Document {
	return []store.Document{
		{FileID: "a", Filename: "a.txt", FileType: "text", Text: "小红书营销"},
		{FileID: "b", Filename: "b.txt", FileType: "text", Text: "今天天气很好"},
		{FileID: "c", Filename: "c.png", FileType: "image", OCRText: "RED营销 策略"},
		{FileID: "d", Filename: "d.txt", FileType: "text", Text: "营销 推广 营销"},
	}
}

func builtLexical(t *testing.T, docs []store.Document) *store.MemoryIndex {
	t.Helper()
	idx := store.NewMemoryIndex(store.DefaultBM25Config())
	require.NoError(t, idx.Index(context.Background(), docs))
	return idx
}

func failingDense() dense.Adapter {
	return dense.AdapterFunc(func(context.Context, string, int) ([]store.RankedHit, error) {
		return nil, amerrors.DenseFailure("fake", errors.New("connection refused"))
	})
}

func TestMultiPath_MergeKeepsBestPayload(t *testing.T) {
	// Given: doc 7 scores 0.3 on the seed and 0.8 on one variant
	pass := newFakePass()
	pass.results["小红书营销"] = []FusedHit{{DocIndex: 7, Score: 0.3, LexicalScore: 0.6, LexicalRank: 1}}
	pass.results["RED营销"] = []FusedHit{{DocIndex: 7, Score: 0.8, DenseScore: 0.8, DenseRank: 1}}
	m := NewMultiPathRetriever(pass, marketingExpander(), &SinglePath{}, 2)

	// When
	res, err := m.Search(context.Background(), "小红书营销", 5, true)

	// Then: best score wins with its whole payload, both passes counted
	require.NoError(t, err)
	assert.Equal(t, MethodMultiPath, res.Method)
	assert.Empty(t, res.Degraded)
	hits := res.Hits
	require.Len(t, hits, 1)
	assert.Equal(t, 0.8, hits[0].Score)
	assert.Equal(t, 2, hits[0].MatchCount)
	assert.Equal(t, "RED营销", hits[0].Variant)
	assert.Equal(t, 0.8, hits[0].DenseScore)
	assert.Zero(t, hits[0].LexicalScore)
}

func TestMultiPath_PassLimits(t *testing.T) {
	pass := newFakePass()
	m := NewMultiPathRetriever(pass, marketingExpander(), &SinglePath{}, 0)

	_, err := m.Search(context.Background(), "小红书营销", 4, true)

	require.NoError(t, err)
	assert.Equal(t, 8, pass.limits["小红书营销"])
	assert.Equal(t, 4, pass.limits["RED营销"])
	assert.Equal(t, 4, pass.limits["种草平台营销"])
}

func TestMultiPath_WithoutExpansion(t *testing.T) {
	pass := newFakePass()
	pass.results["小红书营销"] = []FusedHit{{DocIndex: 1, Score: 0.5}, {DocIndex: 2, Score: 0.4}, {DocIndex: 3, Score: 0.3}}
	m := NewMultiPathRetriever(pass, marketingExpander(), &SinglePath{}, 0)

	res, err := m.Search(context.Background(), "小红书营销", 2, false)

	require.NoError(t, err)
	assert.Equal(t, MethodHybrid, res.Method)
	hits := res.Hits
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].DocIndex)
	assert.Len(t, pass.limits, 1)
}

func TestMultiPath_VariantFailureIsDropped(t *testing.T) {
	// Given: one variant fails at the dense boundary
	pass := newFakePass()
	pass.results["小红书营销"] = []FusedHit{{DocIndex: 1, Score: 0.5}}
	pass.errs["RED营销"] = amerrors.DenseFailure("fake", errors.New("boom"))
	pass.results["种草平台营销"] = []FusedHit{{DocIndex: 2, Score: 0.6}}
	rec := &countingRecorder{}
	m := NewMultiPathRetriever(pass, marketingExpander(), &SinglePath{Recorder: rec}, 0)

	// When
	res, err := m.Search(context.Background(), "小红书营销", 5, true)

	// Then: the other passes still contribute and the failure is reported
	require.NoError(t, err)
	assert.Equal(t, MethodMultiPath, res.Method)
	assert.Equal(t, []int{2, 1}, []int{res.Hits[0].DocIndex, res.Hits[1].DocIndex})
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, "RED营销", res.Degraded[0].Variant)
	assert.Equal(t, amerrors.ErrCodeDenseRetrieval, res.Degraded[0].Code)
	assert.Equal(t, "[ERR_506_DENSE_RETRIEVAL_FAILED] dense backend fake failed", res.Degraded[0].Message)
	assert.Equal(t, 1, rec.variants)
	assert.Equal(t, 1, rec.dense)
}

func TestMultiPath_UntypedVariantFailureIsSearchFailed(t *testing.T) {
	pass := newFakePass()
	pass.results["小红书营销"] = []FusedHit{{DocIndex: 1, Score: 0.5}}
	pass.errs["种草平台营销"] = errors.New("disk gone")
	m := NewMultiPathRetriever(pass, marketingExpander(), &SinglePath{}, 0)

	res, err := m.Search(context.Background(), "小红书营销", 5, true)

	require.NoError(t, err)
	assert.Equal(t, []VariantFailure{{Variant: "种草平台营销", Code: amerrors.ErrCodeSearchFailed, Message: "disk gone"}}, res.Degraded)
}

func TestMultiPath_RankingTieBreaks(t *testing.T) {
	pass := newFakePass()
	pass.results["小红书营销"] = []FusedHit{{DocIndex: 4, Score: 0.5}, {DocIndex: 9, Score: 0.5}, {DocIndex: 2, Score: 0.5}}
	pass.results["RED营销"] = []FusedHit{{DocIndex: 9, Score: 0.1}}
	m := NewMultiPathRetriever(pass, marketingExpander(), &SinglePath{}, 0)

	res, err := m.Search(context.Background(), "小红书营销", 3, true)

	// Equal scores: higher match count first, then ascending doc_index.
	require.NoError(t, err)
	hits := res.Hits
	require.Len(t, hits, 3)
	assert.Equal(t, 9, hits[0].DocIndex)
	assert.Equal(t, 2, hits[0].MatchCount)
	assert.Equal(t, 0.5, hits[0].Score)
	assert.Equal(t, 2, hits[1].DocIndex)
	assert.Equal(t, 4, hits[2].DocIndex)
}

func TestMultiPath_SeedFailureFallsBackToLexical(t *testing.T) {
	// Given: the seed pass fails and a built lexical index
	docs := testDocs()
	lex := builtLexical(t, docs)
	pass := newFakePass()
	pass.errs["小红书营销"] = amerrors.DenseFailure("fake", errors.New("boom"))
	rec := &countingRecorder{}
	single := &SinglePath{Lexical: lex, Dense: failingDense(), Recorder: rec}
	m := NewMultiPathRetriever(pass, marketingExpander(), single, 0)

	// When
	res, err := m.Search(context.Background(), "小红书营销", 3, true)

	// Then: the pure lexical ranking, tagged bm25
	require.NoError(t, err)
	assert.Equal(t, MethodBM25, res.Method)
	hits := res.Hits
	want, err := lex.Search(context.Background(), "小红书营销", 3)
	require.NoError(t, err)
	require.Len(t, hits, len(want))
	for i := range want {
		assert.Equal(t, want[i].DocIndex, hits[i].DocIndex)
		assert.Equal(t, want[i].Score, hits[i].Score)
		assert.Equal(t, 1, hits[i].MatchCount)
	}
	assert.Equal(t, []string{FallbackDenseFailure}, rec.fallbacks)
	assert.Equal(t, 1, rec.dense)
}

func TestMultiPath_SeedFailureWithCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pass := newFakePass()
	pass.errs["q"] = context.Canceled
	m := NewMultiPathRetriever(pass, nil, &SinglePath{}, 0)

	_, err := m.Search(ctx, "q", 3, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSinglePath_FallbackToDense(t *testing.T) {
	// Given: a lexical index that fails for reasons other than emptiness
	brokenLexical := &erroringLexical{err: errors.New("disk gone")}
	denseHits := dense.AdapterFunc(func(context.Context, string, int) ([]store.RankedHit, error) {
		return []store.RankedHit{{DocIndex: 3, Score: 0.7}}, nil
	})
	rec := &countingRecorder{}
	single := &SinglePath{Lexical: brokenLexical, Dense: denseHits, Recorder: rec}

	// When: the seed failed for a non-dense reason
	hits, method, err := single.Fallback(context.Background(), "q", 5, errors.New("lexical search: disk gone"))

	// Then: dense-only results
	require.NoError(t, err)
	assert.Equal(t, MethodVector, method)
	require.Len(t, hits, 1)
	assert.Equal(t, 3, hits[0].DocIndex)
	assert.Equal(t, 0.7, hits[0].DenseScore)
	assert.Equal(t, []string{FallbackSeedFailure, FallbackLexicalFailed}, rec.fallbacks)

	t.Run("dense cause never retries dense", func(t *testing.T) {
		_, _, err := single.Fallback(context.Background(), "q", 5, amerrors.DenseFailure("fake", errors.New("x")))
		assert.EqualError(t, err, "disk gone")
	})
}

func TestSinglePath_EmptyIndexIsNotAnError(t *testing.T) {
	single := &SinglePath{Lexical: store.NewMemoryIndex(store.DefaultBM25Config())}
	hits, err := single.SearchLexical(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

type erroringLexical struct {
	err error
}

func (e *erroringLexical) Index(context.Context, []store.Document) error { return nil }
func (e *erroringLexical) Search(context.Context, string, int) ([]store.RankedHit, error) {
	return nil, e.err
}
func (e *erroringLexical) Stats() store.IndexStats { return store.IndexStats{} }
func (e *erroringLexical) Close() error           { return nil }

func TestHybridRetriever_ProbeWindow(t *testing.T) {
	lex := builtLexical(t, testDocs())
	var asked int
	adapter := dense.AdapterFunc(func(_ context.Context, _ string, topK int) ([]store.RankedHit, error) {
		asked = topK
		return []store.RankedHit{{DocIndex: 1, Score: 0.4}}, nil
	})
	h := NewHybridRetriever(lex, adapter, NewFuser(PolicyWeighted, 0.5, 60), 3)

	t.Run("window larger than limit", func(t *testing.T) {
		hits, err := h.Search(context.Background(), "营销", 1)
		require.NoError(t, err)
		assert.Equal(t, 3, asked)
		assert.Len(t, hits, 1)
	})

	t.Run("limit larger than window", func(t *testing.T) {
		_, err := h.Search(context.Background(), "营销", 20)
		require.NoError(t, err)
		assert.Equal(t, 20, asked)
	})
}

func TestHybridRetriever_Errors(t *testing.T) {
	t.Run("unbuilt lexical contributes nothing", func(t *testing.T) {
		adapter := dense.AdapterFunc(func(context.Context, string, int) ([]store.RankedHit, error) {
			return []store.RankedHit{{DocIndex: 0, Score: 0.9}}, nil
		})
		h := NewHybridRetriever(store.NewMemoryIndex(store.DefaultBM25Config()), adapter, NewFuser(PolicyWeighted, 0.5, 60), 0)
		hits, err := h.Search(context.Background(), "q", 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.InDelta(t, 0.45, hits[0].Score, 1e-12)
	})

	t.Run("dense failure fails the pass", func(t *testing.T) {
		h := NewHybridRetriever(builtLexical(t, testDocs()), failingDense(), NewFuser(PolicyWeighted, 0.5, 60), 0)
		_, err := h.Search(context.Background(), "营销", 5)
		assert.True(t, amerrors.IsDenseFailure(err))
	})

	t.Run("lexical failure is wrapped", func(t *testing.T) {
		h := NewHybridRetriever(&erroringLexical{err: errors.New("io")}, failingDense(), NewFuser(PolicyWeighted, 0.5, 60), 0)
		_, err := h.Search(context.Background(), "营销", 5)
		assert.EqualError(t, err, "lexical search: io")
		assert.False(t, amerrors.IsDenseFailure(err))
	})
}

package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/amanrag/internal/dense"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

var validate = validator.New()

// EngineConfig configures the search engine.
type EngineConfig struct {
	// Policy is the default fusion policy (default: weighted).
	Policy Policy

	// Alpha weights dense against lexical under the weighted policy.
	Alpha float64

	// RRFConstant is the RRF k (default: 60).
	RRFConstant int

	// ProbeWindow is how many hits each retriever returns per pass.
	ProbeWindow int

	// DefaultTopK is used when a request leaves top_k at 0 (default: 10).
	DefaultTopK int

	// MaxTopK caps top_k (default: 100).
	MaxTopK int

	// Threshold is the default minimum score kept in a response.
	Threshold float64

	EnableHybrid    bool
	EnableMultiPath bool
	ExpandQuery     bool

	// VariantParallelism caps concurrent variant passes.
	VariantParallelism int

	// LexicalBackend names the lexical registry entry built on every rebuild.
	LexicalBackend string
	BM25           store.BM25Config

	// DenseBackend is the dense backend name, reported by Stats.
	DenseBackend string

	// SearchTimeout bounds one Search call (0 disables).
	SearchTimeout time.Duration
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Policy:             PolicyWeighted,
		Alpha:              DefaultAlpha,
		RRFConstant:        DefaultRRFConstant,
		ProbeWindow:        DefaultProbeWindow,
		DefaultTopK:        DefaultTopK,
		MaxTopK:            MaxTopK,
		EnableHybrid:       true,
		EnableMultiPath:    true,
		ExpandQuery:        true,
		VariantParallelism: DefaultVariantParallelism,
		LexicalBackend:     store.LexicalMemory,
		BM25:               store.DefaultBM25Config(),
		DenseBackend:       dense.BackendHNSW,
		SearchTimeout:      10 * time.Second,
	}
}

// Stats describes the live snapshot.
type Stats struct {
	Documents      int            `json:"documents"`
	Terms          int            `json:"terms"`
	AvgDocLength   float64        `json:"avg_doc_length"`
	Generation     uint64         `json:"generation"`
	BuiltAt        time.Time      `json:"built_at,omitzero"`
	FilesByType    map[string]int `json:"files_by_type"`
	LexicalBackend string         `json:"lexical_backend"`
	DenseBackend   string         `json:"dense_backend"`
	Synonyms       int            `json:"synonyms"`
}

// snapshot is one published corpus. It is never mutated after publication.
type snapshot struct {
	lexical    store.LexicalIndex
	docs       []store.Document
	generation uint64
	builtAt    time.Time
}

// Engine owns the corpus snapshot and answers searches over it.
//
// A rebuild constructs the new lexical index and stages the dense side
// without blocking searches, then publishes both under the write lock.
// Each search execution holds the read lock for its whole duration, so it
// always sees the lexical index, the dense index and the documents of one
// generation.
//
// Identical concurrent requests share one execution. That execution is
// detached from any single caller's cancellation and bounded by
// SearchTimeout; each caller stops waiting when its own context ends.
type Engine struct {
	config   EngineConfig
	lexicals *store.LexicalRegistry
	dense    dense.Adapter
	expander *QueryExpander
	cache    ResultCache
	recorder Recorder
	logger   *slog.Logger

	mu   sync.RWMutex
	snap *snapshot

	// indexMu serializes rebuilds.
	indexMu sync.Mutex

	epoch  atomic.Uint64
	flight singleflight.Group
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithSynonyms sets the synonym table used for expansion.
func WithSynonyms(t *SynonymTable) EngineOption {
	return func(e *Engine) {
		e.expander = NewQueryExpander(t)
	}
}

// WithCache enables result caching.
func WithCache(c ResultCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithRecorder sets the event recorder, usually telemetry.Metrics.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with an empty snapshot. lexicals constructs a
// fresh lexical index per rebuild; denseAdapter may be dense.Disabled.
func NewEngine(lexicals *store.LexicalRegistry, denseAdapter dense.Adapter, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if lexicals == nil {
		return nil, fmt.Errorf("%w: lexical registry is required", ErrNilDependency)
	}
	if denseAdapter == nil {
		denseAdapter = dense.Disabled{}
	}

	initial, err := lexicals.New(config.LexicalBackend, config.BM25)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   config,
		lexicals: lexicals,
		dense:    denseAdapter,
		expander: NewQueryExpander(nil),
		recorder: nopRecorder{},
		logger:   slog.Default(),
		snap:     &snapshot{lexical: initial},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Index validates docs and replaces the snapshot with one built from them.
// On error the previous snapshot stays live.
func (e *Engine) Index(ctx context.Context, docs []store.Document) error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	start := time.Now()
	err := e.rebuild(ctx, docs)
	e.recorder.IndexRebuilt(len(docs), err)
	if err != nil {
		e.logger.Error("index_rebuild_failed",
			append([]any{slog.Int("documents", len(docs))}, amerrors.LogAttrs(err)...)...)
		return err
	}

	stats := e.Stats()
	e.logger.Info("index_rebuilt",
		slog.Int("documents", stats.Documents),
		slog.Int("terms", stats.Terms),
		slog.Uint64("generation", stats.Generation),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (e *Engine) rebuild(ctx context.Context, docs []store.Document) error {
	if err := validateDocuments(docs); err != nil {
		return err
	}
	docs = append([]store.Document(nil), docs...)

	lexical, err := e.lexicals.New(e.config.LexicalBackend, e.config.BM25)
	if err != nil {
		return err
	}
	if err := lexical.Index(ctx, docs); err != nil {
		_ = lexical.Close()
		return amerrors.New(amerrors.ErrCodeIndexFailed, "failed to build lexical index", err)
	}

	commit := func() {}
	if b, ok := e.dense.(dense.Builder); ok && dense.Enabled(e.dense) {
		commit, err = b.Stage(ctx, docs)
		if err != nil {
			_ = lexical.Close()
			return amerrors.New(amerrors.ErrCodeIndexFailed, "failed to build dense index", err)
		}
	}

	e.mu.Lock()
	commit()
	old := e.snap
	e.snap = &snapshot{
		lexical:    lexical,
		docs:       docs,
		generation: old.generation + 1,
		builtAt:    time.Now(),
	}
	e.mu.Unlock()

	if err := old.lexical.Close(); err != nil {
		e.logger.Warn("lexical_close_failed", amerrors.LogAttrs(err)...)
	}
	return nil
}

func validateDocuments(docs []store.Document) error {
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.FileID) == "" {
			return amerrors.Newf(amerrors.ErrCodeInvalidDocument, "document %d has an empty file_id", i)
		}
		if prev, ok := seen[d.FileID]; ok {
			return amerrors.Newf(amerrors.ErrCodeDuplicateFileID,
				"file_id %q appears at documents %d and %d", d.FileID, prev, i)
		}
		seen[d.FileID] = i
	}
	return nil
}

// plan is a request with every default resolved.
type plan struct {
	query     string
	topK      int
	threshold float64
	mode      Method
	policy    Policy
	expand    bool
}

func (e *Engine) resolve(req Request) (plan, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return plan{}, amerrors.InvalidQuery("query is empty")
	}
	req.Query = query
	if err := validate.Struct(req); err != nil {
		return plan{}, amerrors.ValidationError("invalid search request: "+err.Error(), err)
	}
	if len(store.Tokenize(query)) == 0 {
		return plan{}, amerrors.InvalidQuery("query has no searchable terms: " + query)
	}

	p := plan{query: query, topK: req.TopK, threshold: e.config.Threshold, policy: req.Policy}
	if p.topK <= 0 {
		p.topK = e.config.DefaultTopK
	}
	if e.config.MaxTopK > 0 && p.topK > e.config.MaxTopK {
		p.topK = e.config.MaxTopK
	}
	if req.Threshold != nil {
		p.threshold = *req.Threshold
	}
	if p.policy == "" {
		p.policy = e.config.Policy
	}

	p.expand = e.config.ExpandQuery
	if req.ExpandQuery != nil {
		p.expand = *req.ExpandQuery
	}

	switch {
	case !dense.Enabled(e.dense):
		p.mode = MethodBM25
	case req.Mode != "":
		p.mode = req.Mode
	case req.UseHybrid != nil && !*req.UseHybrid:
		p.mode = MethodVector
	case e.config.EnableMultiPath && p.expand:
		p.mode = MethodMultiPath
	case e.config.EnableHybrid:
		p.mode = MethodHybrid
	default:
		p.mode = MethodVector
	}
	return p, nil
}

// Search ranks the snapshot's documents for req. The response method is
// the path that actually produced the results, which differs from the
// requested mode after a fallback.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	p, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}

	e.mu.RLock()
	generation := e.snap.generation
	e.mu.RUnlock()

	key := cacheKey(p, generation, e.epoch.Load())

	if e.cache != nil {
		if resp, ok := e.cache.Get(ctx, key); ok {
			e.recorder.CacheLookup(true)
			resp.Cached = true
			resp.QueryTime = time.Since(start)
			e.recorder.SearchCompleted(SearchEvent{
				Query: p.query, Method: resp.Method, Results: resp.Total, Latency: resp.QueryTime, Cached: true,
			})
			return resp, nil
		}
		e.recorder.CacheLookup(false)
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (any, error) {
		return e.runShared(flightCtx, key, generation, p)
	})

	var v any
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v = res.Val
	case <-ctx.Done():
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "search canceled", ctx.Err())
	}

	shared := v.(*Response)
	resp := *shared
	resp.Results = append([]Result(nil), shared.Results...)
	resp.Degraded = append([]VariantFailure(nil), shared.Degraded...)
	resp.QueryTime = time.Since(start)

	e.recorder.SearchCompleted(SearchEvent{
		Query: p.query, Method: resp.Method, Results: resp.Total, Latency: resp.QueryTime,
	})
	e.logger.Debug("search_completed",
		slog.String("query", p.query),
		slog.String("method", string(resp.Method)),
		slog.Int("results", resp.Total),
		slog.Duration("duration", resp.QueryTime))
	return &resp, nil
}

// runShared executes p for every caller waiting on key. The result is
// cached only if the snapshot is still the one the key was computed for.
func (e *Engine) runShared(ctx context.Context, key string, generation uint64, p plan) (*Response, error) {
	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snap

	resp, err := e.execute(ctx, snap, p)
	if err != nil {
		return nil, err
	}
	if e.cache != nil && snap.generation == generation {
		e.cache.Set(ctx, key, resp)
	}
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, snap *snapshot, p plan) (*Response, error) {
	resp := &Response{Results: []Result{}, Method: p.mode, Generation: snap.generation}
	if len(snap.docs) == 0 {
		return resp, nil
	}

	single := &SinglePath{Lexical: snap.lexical, Dense: e.dense, Recorder: e.recorder, Logger: e.logger}

	var (
		hits     []Hit
		method   Method
		degraded []VariantFailure
		err      error
	)
	switch p.mode {
	case MethodBM25:
		hits, err = single.SearchLexical(ctx, p.query, p.topK)
		method = MethodBM25
	case MethodVector:
		hits, err = single.SearchDense(ctx, p.query, p.topK)
		method = MethodVector
		if err != nil && ctx.Err() == nil {
			hits, method, err = single.Fallback(ctx, p.query, p.topK, err)
		}
	default:
		fuser := NewFuser(p.policy, e.config.Alpha, e.config.RRFConstant)
		pass := NewHybridRetriever(snap.lexical, e.dense, fuser, e.config.ProbeWindow)
		multi := NewMultiPathRetriever(pass, e.expander, single, e.config.VariantParallelism)
		var res MultiPathResult
		res, err = multi.Search(ctx, p.query, p.topK, p.mode == MethodMultiPath && p.expand)
		hits, method, degraded = res.Hits, res.Method, res.Degraded
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "search failed", err)
	}

	resp.Method = method
	resp.Degraded = degraded
	for _, h := range hits {
		if h.Score < p.threshold {
			continue
		}
		doc := snap.docs[h.DocIndex]
		resp.Results = append(resp.Results, Result{
			FileID:       doc.FileID,
			Filename:     doc.Filename,
			FileType:     doc.FileType,
			Score:        h.Score,
			MatchCount:   h.MatchCount,
			Method:       method,
			DenseScore:   h.DenseScore,
			LexicalScore: h.LexicalScore,
			Variant:      h.Variant,
		})
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

// Expand returns the query variants the multi-path search would run.
func (e *Engine) Expand(query string) []string {
	return e.expander.Expand(strings.TrimSpace(query))
}

// AddSynonym replaces the alternates of canonical. Cached results computed
// with the previous table are not served again.
func (e *Engine) AddSynonym(canonical string, synonyms ...string) error {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return amerrors.ValidationError("canonical phrase is empty", nil)
	}
	if len(synonyms) == 0 {
		return amerrors.ValidationError("at least one synonym is required", nil)
	}
	e.expander.AddSynonym(canonical, synonyms...)
	e.epoch.Add(1)
	e.logger.Info("synonym_added",
		slog.String("canonical", canonical),
		slog.Int("synonyms", len(synonyms)))
	return nil
}

// Synonyms returns the synonym table.
func (e *Engine) Synonyms() *SynonymTable {
	return e.expander.Table()
}

// Stats describes the live snapshot.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ls := e.snap.lexical.Stats()
	byType := make(map[string]int)
	for _, d := range e.snap.docs {
		ft := d.FileType
		if ft == "" {
			ft = "unknown"
		}
		byType[ft]++
	}

	denseName := e.config.DenseBackend
	if !dense.Enabled(e.dense) {
		denseName = dense.BackendNone
	}
	lexName := e.config.LexicalBackend
	if lexName == "" {
		lexName = store.LexicalMemory
	}

	return Stats{
		Documents:      len(e.snap.docs),
		Terms:          ls.TermCount,
		AvgDocLength:   ls.AvgDocLength,
		Generation:     e.snap.generation,
		BuiltAt:        e.snap.builtAt,
		FilesByType:    byType,
		LexicalBackend: lexName,
		DenseBackend:   denseName,
		Synonyms:       e.expander.Table().Len(),
	}
}

// Document returns the document at docIndex in the live snapshot.
func (e *Engine) Document(docIndex int) (store.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if docIndex < 0 || docIndex >= len(e.snap.docs) {
		return store.Document{}, false
	}
	return e.snap.docs[docIndex], true
}

// Close releases the lexical index, the dense adapter and the cache.
func (e *Engine) Close() error {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.snap.lexical.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := e.dense.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package telemetry records search behaviour: Prometheus metrics for
// scraping and a local query log of search patterns (top terms, zero-result
// queries, latency buckets). Nothing is reported externally.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// LatencyBucket is a coarse latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer; capacity <= 0 means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
		return out
	}
	n := copy(out, b.items[b.head:])
	copy(out[n:], b.items[:b.head])
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryLogSnapshot is a point-in-time copy of the query log.
type QueryLogSnapshot struct {
	MethodCounts        map[search.Method]int64 `json:"method_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	CachedCount         int64                   `json:"cached_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries in percent.
func (s *QueryLogSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// QueryStore persists query log deltas. SQLiteStore implements it.
type QueryStore interface {
	SaveMethodCounts(date string, counts map[search.Method]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQueries(queries []string, at time.Time) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	Close() error
}

// QueryLogConfig configures a QueryLog.
type QueryLogConfig struct {
	TopTermsCapacity      int           // default: 100
	ZeroResultsCapacity   int           // default: 100
	RecentQueriesCapacity int           // default: 500
	FlushInterval         time.Duration // 0 disables the flush loop
}

// DefaultQueryLogConfig returns the defaults.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// pending holds what has not been flushed yet.
type pending struct {
	methods     map[search.Method]int64
	terms       map[string]int64
	zeroResults []string
	latencies   map[LatencyBucket]int64
}

func newPending() pending {
	return pending{
		methods:   make(map[search.Method]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

// QueryLog aggregates search events in memory and optionally flushes them
// to a QueryStore. Safe for concurrent use.
type QueryLog struct {
	mu sync.Mutex

	methods       map[search.Method]int64
	topTerms      *lru.Cache[string, int64]
	zeroResults   *CircularBuffer[string]
	latencies     map[LatencyBucket]int64
	recentQueries *lru.Cache[string, struct{}]
	total         int64
	zeroCount     int64
	cached        int64
	repeats       int64
	since         time.Time

	unflushed pending
	store     QueryStore
	logger    *slog.Logger
	stopCh    chan struct{}
	done      chan struct{}
	closed    bool
}

// NewQueryLog creates a query log. store may be nil for memory only.
func NewQueryLog(store QueryStore, cfg QueryLogConfig, logger *slog.Logger) *QueryLog {
	def := DefaultQueryLogConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	l := &QueryLog{
		methods:       make(map[search.Method]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		since:         time.Now(),
		unflushed:     newPending(),
		store:         store,
		logger:        logger,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	if store != nil && cfg.FlushInterval > 0 {
		go l.flushLoop(cfg.FlushInterval)
	} else {
		close(l.done)
	}
	return l
}

func (l *QueryLog) flushLoop(interval time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				l.logger.Warn("query_log_flush_failed", slog.String("error", err.Error()))
			}
		case <-l.stopCh:
			return
		}
	}
}

// Record adds one search event.
func (l *QueryLog) Record(ev search.SearchEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.total++
	l.methods[ev.Method]++
	l.unflushed.methods[ev.Method]++

	for _, term := range ExtractTerms(ev.Query) {
		count, _ := l.topTerms.Get(term)
		l.topTerms.Add(term, count+1)
		l.unflushed.terms[term]++
	}

	if ev.Results == 0 {
		l.zeroResults.Add(ev.Query)
		l.zeroCount++
		l.unflushed.zeroResults = append(l.unflushed.zeroResults, ev.Query)
	}
	if ev.Cached {
		l.cached++
	}

	bucket := LatencyToBucket(ev.Latency)
	l.latencies[bucket]++
	l.unflushed.latencies[bucket]++

	key := hashQuery(ev.Query)
	if _, ok := l.recentQueries.Get(key); ok {
		l.repeats++
	}
	l.recentQueries.Add(key, struct{}{})
}

// ExtractTerms returns the distinct index terms of query, in first-seen
// order, using the lexical tokenizer.
func ExtractTerms(query string) []string {
	tokens := store.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tokens))
	terms := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the current aggregates.
func (l *QueryLog) Snapshot() *QueryLogSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	topTerms := make([]TermCount, 0, l.topTerms.Len())
	for _, term := range l.topTerms.Keys() {
		if count, ok := l.topTerms.Peek(term); ok {
			topTerms = append(topTerms, TermCount{Term: term, Count: count})
		}
	}
	slices.SortStableFunc(topTerms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})

	var repeatRate float64
	if l.total > 0 {
		repeatRate = float64(l.repeats) / float64(l.total)
	}

	return &QueryLogSnapshot{
		MethodCounts:        cloneMap(l.methods),
		TopTerms:            topTerms,
		ZeroResultQueries:   l.zeroResults.Items(),
		LatencyDistribution: cloneMap(l.latencies),
		TotalQueries:        l.total,
		ZeroResultCount:     l.zeroCount,
		CachedCount:         l.cached,
		ExactRepeatCount:    l.repeats,
		ExactRepeatRate:     repeatRate,
		Since:               l.since,
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Flush writes everything recorded since the previous flush to the store.
// On error the deltas are kept for the next attempt.
func (l *QueryLog) Flush() error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	p := l.unflushed
	l.unflushed = newPending()
	l.mu.Unlock()

	if err := l.write(p); err != nil {
		l.mu.Lock()
		l.unflushed = mergePending(p, l.unflushed)
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *QueryLog) write(p pending) error {
	now := time.Now()
	today := now.Format("2006-01-02")
	if len(p.methods) > 0 {
		if err := l.store.SaveMethodCounts(today, p.methods); err != nil {
			return err
		}
	}
	if err := l.store.UpsertTermCounts(p.terms); err != nil {
		return err
	}
	if len(p.zeroResults) > 0 {
		if err := l.store.AddZeroResultQueries(p.zeroResults, now); err != nil {
			return err
		}
	}
	if len(p.latencies) > 0 {
		if err := l.store.SaveLatencyCounts(today, p.latencies); err != nil {
			return err
		}
	}
	return nil
}

func mergePending(a, b pending) pending {
	for k, v := range b.methods {
		a.methods[k] += v
	}
	for k, v := range b.terms {
		a.terms[k] += v
	}
	for k, v := range b.latencies {
		a.latencies[k] += v
	}
	a.zeroResults = append(a.zeroResults, b.zeroResults...)
	return a
}

// Close stops the flush loop, flushes and closes the store.
func (l *QueryLog) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stopCh)
	<-l.done

	if l.store == nil {
		return nil
	}
	if err := l.Flush(); err != nil {
		_ = l.store.Close()
		return err
	}
	return l.store.Close()
}

package store

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// MemoryIndex is an exact in-memory BM25 index.
//
// Search scans every document of the snapshot, so a query costs
// O(documents × distinct query tokens). There is no postings list; this is
// the scaling limit of the index and the reason the bleve backend exists.
type MemoryIndex struct {
	config BM25Config
	snap   atomic.Pointer[bm25Snapshot]
}

// bm25Snapshot is immutable once published.
type bm25Snapshot struct {
	termFreqs []map[string]int
	docLens   []int
	idf       map[string]float64
	avgDocLen float64
}

// NewMemoryIndex creates an empty index. Zero parameters fall back to the
// defaults.
func NewMemoryIndex(cfg BM25Config) *MemoryIndex {
	def := DefaultBM25Config()
	if cfg.K1 <= 0 {
		cfg.K1 = def.K1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = def.B
	}
	return &MemoryIndex{config: cfg}
}

// Index builds a new snapshot from docs and publishes it atomically.
func (m *MemoryIndex) Index(ctx context.Context, docs []Document) error {
	snap := &bm25Snapshot{
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	df := make(map[string]int)
	total := 0
	for i, doc := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tokens := Tokenize(doc.SearchText())
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		snap.termFreqs[i] = tf
		snap.docLens[i] = len(tokens)
		total += len(tokens)
	}

	n := float64(len(docs))
	for tok, freq := range df {
		f := float64(freq)
		snap.idf[tok] = math.Log((n-f+0.5)/(f+0.5) + 1)
	}
	if len(docs) > 0 {
		snap.avgDocLen = float64(total) / n
	}

	m.snap.Store(snap)
	return nil
}

// Search scores every document against query and returns the best topK.
// Documents sharing no term with the query score 0 and rank after every
// match. Ties keep ascending doc_index order.
func (m *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]RankedHit, error) {
	snap := m.snap.Load()
	if snap == nil {
		return nil, amerrors.IndexNotBuilt("lexical")
	}
	if len(snap.docLens) == 0 || snap.avgDocLen == 0 {
		return nil, amerrors.New(amerrors.ErrCodeEmptyCorpus, "lexical index has no terms", nil)
	}
	if topK <= 0 {
		return []RankedHit{}, nil
	}

	// Query terms keep first-occurrence order so float sums are reproducible.
	type queryTerm struct {
		term  string
		count int
	}
	var terms []queryTerm
	seen := make(map[string]int)
	for _, tok := range Tokenize(query) {
		if _, ok := snap.idf[tok]; !ok {
			continue
		}
		if pos, ok := seen[tok]; ok {
			terms[pos].count++
			continue
		}
		seen[tok] = len(terms)
		terms = append(terms, queryTerm{term: tok, count: 1})
	}

	k1, b := m.config.K1, m.config.B
	hits := make([]RankedHit, 0, len(snap.termFreqs))
	for i, tf := range snap.termFreqs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		norm := k1 * (1 - b + b*float64(snap.docLens[i])/snap.avgDocLen)
		score := 0.0
		for _, qt := range terms {
			f, ok := tf[qt.term]
			if !ok {
				continue
			}
			ft := float64(f)
			score += float64(qt.count) * snap.idf[qt.term] * ft * (k1 + 1) / (ft + norm)
		}
		hits = append(hits, RankedHit{DocIndex: i, Score: score})
	}

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Stats describes the live snapshot.
func (m *MemoryIndex) Stats() IndexStats {
	snap := m.snap.Load()
	if snap == nil {
		return IndexStats{}
	}
	return IndexStats{
		Built:         true,
		DocumentCount: len(snap.docLens),
		TermCount:     len(snap.idf),
		AvgDocLength:  snap.avgDocLen,
	}
}

// Close drops the snapshot.
func (m *MemoryIndex) Close() error {
	m.snap.Store(nil)
	return nil
}

// sortHits orders hits by descending score, then ascending doc_index.
func sortHits(hits []RankedHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocIndex < hits[j].DocIndex
	})
}

var _ LexicalIndex = (*MemoryIndex)(nil)

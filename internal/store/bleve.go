package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

const (
	// CJKTokenizerName is the bleve registry name of the shared tokenizer.
	CJKTokenizerName = "amanrag_cjk"

	// CJKAnalyzerName is the analyzer applied to the content field.
	CJKAnalyzerName = "amanrag_cjk_analyzer"

	contentField = "content"
)

func init() {
	_ = registry.RegisterTokenizer(CJKTokenizerName, cjkTokenizerConstructor)
}

// BleveIndex is a lexical index backed by an in-memory bleve index that uses
// the same tokenizer as MemoryIndex. Scores come from bleve's own
// similarity and are not identical to MemoryIndex scores.
type BleveIndex struct {
	// mu guards the swap; searches hold it shared so a replaced index is
	// never closed underneath them.
	mu   sync.RWMutex
	snap *bleveSnapshot
}

type bleveSnapshot struct {
	index bleve.Index
	stats IndexStats
}

type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveIndex creates an empty bleve-backed index.
func NewBleveIndex() *BleveIndex {
	return &BleveIndex{}
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(CJKAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     CJKTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	field := bleve.NewTextFieldMapping()
	field.Analyzer = CJKAnalyzerName
	field.Store = false
	field.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(contentField, field)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = CJKAnalyzerName
	return im, nil
}

// docID pads doc_index so that bleve's lexical _id order is numeric order.
func docID(i int) string {
	return fmt.Sprintf("%010d", i)
}

// Index builds a fresh bleve index from docs and swaps it in.
func (b *BleveIndex) Index(ctx context.Context, docs []Document) error {
	im, err := newIndexMapping()
	if err != nil {
		return err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return fmt.Errorf("failed to create bleve index: %w", err)
	}

	stats := IndexStats{Built: true, DocumentCount: len(docs)}
	terms := make(map[string]struct{})
	total := 0

	batch := idx.NewBatch()
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return err
		}
		text := doc.SearchText()
		for _, tok := range Tokenize(text) {
			terms[tok] = struct{}{}
			total++
		}
		if err := batch.Index(docID(i), bleveDocument{Content: text}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("failed to index document %s: %w", doc.FileID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	stats.TermCount = len(terms)
	if len(docs) > 0 {
		stats.AvgDocLength = float64(total) / float64(len(docs))
	}

	b.mu.Lock()
	old := b.snap
	b.snap = &bleveSnapshot{index: idx, stats: stats}
	b.mu.Unlock()

	if old != nil {
		_ = old.index.Close()
	}
	return nil
}

// Search runs a match query against the content field.
func (b *BleveIndex) Search(ctx context.Context, query string, topK int) ([]RankedHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.snap == nil {
		return nil, amerrors.IndexNotBuilt("lexical")
	}
	if b.snap.stats.DocumentCount == 0 || b.snap.stats.AvgDocLength == 0 {
		return nil, amerrors.New(amerrors.ErrCodeEmptyCorpus, "lexical index has no terms", nil)
	}
	if topK <= 0 {
		return []RankedHit{}, nil
	}
	if len(Tokenize(query)) == 0 {
		return padZeroHits(nil, b.snap.stats.DocumentCount, topK), nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField(contentField)

	req := bleve.NewSearchRequest(mq)
	req.Size = topK
	req.SortBy([]string{"-_score", "_id"})

	result, err := b.snap.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]RankedHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		i, err := strconv.Atoi(h.ID)
		if err != nil {
			return nil, amerrors.InternalError("unexpected bleve document id "+h.ID, err)
		}
		if h.Score <= 0 {
			continue
		}
		hits = append(hits, RankedHit{DocIndex: i, Score: h.Score})
	}
	sortHits(hits)
	return padZeroHits(hits, b.snap.stats.DocumentCount, topK), nil
}

// padZeroHits fills hits up to topK with the unmatched documents at score 0,
// in ascending doc_index order, the way the exact index ranks them.
func padZeroHits(hits []RankedHit, docCount, topK int) []RankedHit {
	if len(hits) >= topK || len(hits) >= docCount {
		return hits
	}
	matched := make(map[int]struct{}, len(hits))
	for _, h := range hits {
		matched[h.DocIndex] = struct{}{}
	}
	for i := 0; i < docCount && len(hits) < topK; i++ {
		if _, ok := matched[i]; ok {
			continue
		}
		hits = append(hits, RankedHit{DocIndex: i, Score: 0})
	}
	return hits
}

// Stats describes the live snapshot.
func (b *BleveIndex) Stats() IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap == nil {
		return IndexStats{}
	}
	return b.snap.stats
}

// Close closes the live bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snap == nil {
		return nil
	}
	err := b.snap.index.Close()
	b.snap = nil
	return err
}

var _ LexicalIndex = (*BleveIndex)(nil)

func cjkTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &cjkTokenizer{}, nil
}

// cjkTokenizer adapts Tokenize to bleve's analysis.Tokenizer.
type cjkTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *cjkTokenizer) Tokenize(input []byte) analysis.TokenStream {
	spans := tokenizeSpans(string(input))
	stream := make(analysis.TokenStream, 0, len(spans))
	for i, sp := range spans {
		typ := analysis.AlphaNumeric
		if r, _ := utf8.DecodeRuneInString(sp.term); isCJK(r) {
			typ = analysis.Ideographic
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(sp.term),
			Start:    sp.start,
			End:      sp.end,
			Position: i + 1,
			Type:     typ,
		})
	}
	return stream
}

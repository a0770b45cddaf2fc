// Package store provides the retrieval indexes behind hybrid search: the
// exact BM25 lexical index, a bleve-backed alternative, and the HNSW vector
// store used by the local dense adapter.
//
// Every index is built wholesale from an ordered document snapshot. A
// document's position in that snapshot is its doc_index, and all rankings
// produced here are expressed in doc_index terms.
package store

import (
	"context"
)

// Document is one item of the corpus as supplied by ingestion.
type Document struct {
	FileID   string `json:"file_id" yaml:"file_id"`
	Filename string `json:"filename" yaml:"filename"`
	FileType string `json:"file_type" yaml:"file_type"`
	Text     string `json:"text" yaml:"text"`
	OCRText  string `json:"ocr_text" yaml:"ocr_text"`
}

// SearchText returns the text that lexical and dense indexes see.
func (d Document) SearchText() string {
	return d.Text + " " + d.OCRText
}

// RankedHit is a single ranking entry. Lexical scores are unbounded
// non-negative; dense scores are similarities in [0,1].
type RankedHit struct {
	DocIndex int
	Score    float64
}

// LexicalIndex is a keyword retriever rebuilt from scratch on every Index
// call. Searches never observe a partially built snapshot.
type LexicalIndex interface {
	// Index replaces the current snapshot with one built from docs.
	// The position of each document fixes its doc_index.
	Index(ctx context.Context, docs []Document) error

	// Search returns at most topK hits sorted by non-increasing score.
	// An empty snapshot yields no hits and an error matching
	// errors.ErrEmptyCorpus or errors.ErrIndexNotBuilt.
	Search(ctx context.Context, query string, topK int) ([]RankedHit, error)

	// Stats describes the live snapshot.
	Stats() IndexStats

	// Close releases resources held by the index.
	Close() error
}

// IndexStats provides statistics about a lexical snapshot.
type IndexStats struct {
	Built         bool    `json:"built"`
	DocumentCount int     `json:"document_count"`
	TermCount     int     `json:"term_count"`
	AvgDocLength  float64 `json:"avg_doc_length"`
}

// BM25Config configures BM25 scoring.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.5)
	K1 float64 `yaml:"k1" validate:"gte=0"`

	// B is the length normalization parameter (default: 0.75)
	B float64 `yaml:"b" validate:"gte=0,lte=1"`
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1: 1.5,
		B:  0.75,
	}
}

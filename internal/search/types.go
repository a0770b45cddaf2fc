// Package search implements hybrid ranking: fusion of a lexical and a dense
// ranking, synonym query expansion, and the multi-path orchestrator that
// merges fused passes across query variants. Engine ties these to an index
// snapshot and is the entry point for the CLI and the MCP server.
package search

import (
	"fmt"
	"strings"
	"time"
)

// Policy selects how lexical and dense rankings are fused.
type Policy string

const (
	// PolicyWeighted is α·dense + (1-α)·lexical on raw scores.
	PolicyWeighted Policy = "weighted"

	// PolicyRRF is reciprocal rank fusion, Σ 1/(k + rank).
	PolicyRRF Policy = "rrf"
)

// ParsePolicy parses a policy name. Empty selects weighted.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyWeighted:
		return PolicyWeighted, nil
	case PolicyRRF:
		return PolicyRRF, nil
	default:
		return "", fmt.Errorf("unknown fusion policy %q (want weighted or rrf)", s)
	}
}

// Method tags the retrieval path that actually produced a result list.
type Method string

const (
	MethodVector    Method = "vector"
	MethodBM25      Method = "bm25"
	MethodHybrid    Method = "hybrid"
	MethodMultiPath Method = "multi_path_hybrid"
)

// Defaults shared by the engine and configuration.
const (
	DefaultAlpha       = 0.5
	DefaultRRFConstant = 60
	DefaultProbeWindow = 50
	DefaultTopK        = 10
	MaxTopK            = 100
)

// FusedHit is one entry of a fused ranking. Ranks are 1-based; 0 means the
// document was absent from that list.
type FusedHit struct {
	DocIndex     int
	Score        float64
	DenseScore   float64
	DenseRank    int
	LexicalScore float64
	LexicalRank  int
}

// Hit is an orchestrator result: the payload of the best-scoring pass that
// surfaced the document, plus how many passes surfaced it.
type Hit struct {
	FusedHit
	MatchCount int
	// Variant is the query text of the pass whose payload was kept.
	Variant string
}

// Result is a ranked document as returned to callers.
type Result struct {
	FileID       string  `json:"file_id"`
	Filename     string  `json:"filename"`
	FileType     string  `json:"file_type"`
	Score        float64 `json:"fused_score"`
	MatchCount   int     `json:"match_count"`
	Method       Method  `json:"method"`
	DenseScore   float64 `json:"dense_score,omitempty"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
	Variant      string  `json:"matched_query,omitempty"`
}

// Request is a search request. Zero values select configured defaults.
type Request struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=100"`

	// Threshold overrides the configured minimum score; nil keeps it.
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Mode forces a retrieval path.
	Mode Method `json:"mode,omitempty" validate:"omitempty,oneof=vector bm25 hybrid multi_path_hybrid"`

	// Policy overrides the configured fusion policy.
	Policy Policy `json:"policy,omitempty" validate:"omitempty,oneof=weighted rrf"`

	// UseHybrid=false selects the plain vector path.
	UseHybrid *bool `json:"use_hybrid,omitempty"`

	// ExpandQuery=false disables synonym variants.
	ExpandQuery *bool `json:"expand_query,omitempty"`
}

// VariantFailure is a query variant whose pass failed. The response is
// still ranked from the remaining passes.
type VariantFailure struct {
	Variant string `json:"variant"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the outcome of a search.
type Response struct {
	Results    []Result      `json:"results"`
	Total      int           `json:"total"`
	QueryTime  time.Duration `json:"query_time"`
	Method     Method        `json:"method"`
	Generation uint64        `json:"generation"`
	Cached     bool          `json:"cached,omitempty"`

	// Degraded lists the variant passes that failed.
	Degraded []VariantFailure `json:"degraded,omitempty"`
}

// Bool returns a pointer to b, for Request flags.
func Bool(b bool) *bool {
	return &b
}

// Float returns a pointer to f, for Request.Threshold.
func Float(f float64) *float64 {
	return &f
}

package mcp

import (
	"time"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
)

// Tool names.
const (
	ToolSearch      = "search"
	ToolExpandQuery = "expand_query"
	ToolAddSynonym  = "add_synonym"
	ToolIndexStatus = "index_status"
)

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"the search query, Chinese or English"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum fused score between 0 and 1, default from configuration"`
	Policy    string   `json:"policy,omitempty" jsonschema:"fusion policy: weighted or rrf"`
	Expand    *bool    `json:"expand,omitempty" jsonschema:"run synonym variants, default true"`
	Mode      string   `json:"mode,omitempty" jsonschema:"force a path: vector, bm25, hybrid or multi_path_hybrid"`
}

// SearchOutput is the output schema of the search tool.
type SearchOutput struct {
	Query      string                  `json:"query"`
	Method     string                  `json:"method" jsonschema:"retrieval path that produced the results"`
	Total      int                     `json:"total"`
	QueryMS    float64                 `json:"query_time_ms"`
	Generation uint64                  `json:"generation" jsonschema:"index snapshot the results came from"`
	Results    []search.Result         `json:"results"`
	Degraded   []search.VariantFailure `json:"degraded,omitempty" jsonschema:"query variants skipped because their search failed"`
}

// ExpandQueryInput is the input schema of the expand_query tool.
type ExpandQueryInput struct {
	Query string `json:"query" jsonschema:"the query to expand"`
}

// ExpandQueryOutput is the output schema of the expand_query tool.
type ExpandQueryOutput struct {
	Query    string   `json:"query"`
	Variants []string `json:"variants" jsonschema:"the query followed by one variant per synonym substitution"`
}

// AddSynonymInput is the input schema of the add_synonym tool.
type AddSynonymInput struct {
	Canonical string   `json:"canonical" jsonschema:"the phrase to expand"`
	Synonyms  []string `json:"synonyms" jsonschema:"alternates that replace any existing list"`
}

// AddSynonymOutput is the output schema of the add_synonym tool.
type AddSynonymOutput struct {
	Canonical string   `json:"canonical"`
	Synonyms  []string `json:"synonyms"`
	Total     int      `json:"total_synonym_groups"`
}

// IndexStatusInput is the (empty) input schema of the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema of the index_status tool.
type IndexStatusOutput struct {
	Ready          bool           `json:"ready" jsonschema:"true once a corpus has been indexed"`
	Documents      int            `json:"documents"`
	Terms          int            `json:"terms" jsonschema:"distinct lexical terms in the index"`
	AvgDocLength   float64        `json:"avg_doc_length"`
	Generation     uint64         `json:"generation"`
	BuiltAt        string         `json:"built_at,omitempty" jsonschema:"RFC 3339 time of the last rebuild"`
	FilesByType    map[string]int `json:"files_by_type"`
	LexicalBackend string         `json:"lexical_backend"`
	DenseBackend   string         `json:"dense_backend"`
	Synonyms       int            `json:"synonym_groups"`
	Queries        *QueryStats    `json:"queries,omitempty" jsonschema:"query patterns seen by this server"`
}

// QueryStats summarizes the query log for index_status.
type QueryStats struct {
	Total             int64            `json:"total"`
	ZeroResults       int64            `json:"zero_results"`
	ZeroResultPercent float64          `json:"zero_result_percent"`
	Cached            int64            `json:"cached"`
	ExactRepeatRate   float64          `json:"exact_repeat_rate"`
	Methods           map[string]int64 `json:"methods"`
	TopTerms          []TermOutput     `json:"top_terms"`
	RecentZeroResults []string         `json:"recent_zero_result_queries"`
}

// TermOutput is one query term and how often it was seen.
type TermOutput struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

const maxStatusTerms = 10

func newIndexStatusOutput(stats search.Stats, snap *telemetry.QueryLogSnapshot) *IndexStatusOutput {
	out := &IndexStatusOutput{
		Ready:          stats.Generation > 0,
		Documents:      stats.Documents,
		Terms:          stats.Terms,
		AvgDocLength:   stats.AvgDocLength,
		Generation:     stats.Generation,
		FilesByType:    stats.FilesByType,
		LexicalBackend: stats.LexicalBackend,
		DenseBackend:   stats.DenseBackend,
		Synonyms:       stats.Synonyms,
	}
	if !stats.BuiltAt.IsZero() {
		out.BuiltAt = stats.BuiltAt.Format(time.RFC3339)
	}
	if snap == nil {
		return out
	}

	q := &QueryStats{
		Total:             snap.TotalQueries,
		ZeroResults:       snap.ZeroResultCount,
		ZeroResultPercent: snap.ZeroResultPercentage(),
		Cached:            snap.CachedCount,
		ExactRepeatRate:   snap.ExactRepeatRate,
		Methods:           make(map[string]int64, len(snap.MethodCounts)),
		TopTerms:          []TermOutput{},
		RecentZeroResults: snap.ZeroResultQueries,
	}
	for m, n := range snap.MethodCounts {
		q.Methods[string(m)] = n
	}
	for i, tc := range snap.TopTerms {
		if i == maxStatusTerms {
			break
		}
		q.TopTerms = append(q.TopTerms, TermOutput{Term: tc.Term, Count: tc.Count})
	}
	if q.RecentZeroResults == nil {
		q.RecentZeroResults = []string{}
	}
	out.Queries = q
	return out
}

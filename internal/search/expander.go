package search

import "strings"

// QueryExpander produces query variants from a SynonymTable.
//
// Matching is literal substring matching. Each matched canonical phrase
// expands on its own: one variant per synonym with every occurrence of that
// phrase replaced. Phrases are never combined with each other, overlapping
// matches are not resolved, and variants are not deduplicated; the
// orchestrator's per-document merge absorbs duplicates.
type QueryExpander struct {
	table *SynonymTable
}

// NewQueryExpander creates an expander over table. A nil table means no
// synonyms.
func NewQueryExpander(table *SynonymTable) *QueryExpander {
	if table == nil {
		table = NewSynonymTable()
	}
	return &QueryExpander{table: table}
}

// Expand returns the variants of query, starting with query itself.
func (e *QueryExpander) Expand(query string) []string {
	variants := []string{query}
	if query == "" {
		return variants
	}

	e.table.mu.RLock()
	defer e.table.mu.RUnlock()

	for _, canonical := range e.table.order {
		if !strings.Contains(query, canonical) {
			continue
		}
		for _, syn := range e.table.entries[canonical] {
			variants = append(variants, strings.ReplaceAll(query, canonical, syn))
		}
	}
	return variants
}

// AddSynonym sets the alternates of canonical.
func (e *QueryExpander) AddSynonym(canonical string, synonyms ...string) {
	e.table.Set(canonical, synonyms...)
}

// Table returns the underlying synonym table.
func (e *QueryExpander) Table() *SynonymTable {
	return e.table
}

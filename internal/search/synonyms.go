package search

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// SynonymEntry is a canonical phrase and its alternate surface forms.
type SynonymEntry struct {
	Canonical string   `json:"canonical" yaml:"canonical"`
	Synonyms  []string `json:"synonyms" yaml:"synonyms"`
}

// SynonymTable maps canonical phrases to ordered alternates. Canonicals
// iterate in insertion order so expansion output is stable. Reads take a
// shared lock; Set takes it exclusively.
type SynonymTable struct {
	mu      sync.RWMutex
	order   []string
	entries map[string][]string
}

// NewSynonymTable creates an empty table.
func NewSynonymTable() *SynonymTable {
	return &SynonymTable{entries: make(map[string][]string)}
}

// DefaultSynonyms returns the built-in table for Chinese marketing and
// learning content, including Chinese/English name pairs.
func DefaultSynonyms() *SynonymTable {
	t := NewSynonymTable()
	t.Set("小红书", "RED", "小红书APP", "小红书平台", "种草平台")
	t.Set("营销", "推广", "宣传", "运营")
	t.Set("教程", "指南", "攻略", "教学")
	t.Set("方法", "技巧", "方式", "策略")
	t.Set("李宏毅", "Hung-yi Lee", "Lee Hung-yi", "Hongyi Li", "Li Hongyi")
	t.Set("吴恩达", "Andrew Ng", "Ng Andrew")
	t.Set("李飞飞", "Fei-Fei Li", "Li Fei-Fei")
	return t
}

// Set replaces the alternates of canonical. A new canonical goes to the end
// of the iteration order. Empty alternates are dropped.
func (t *SynonymTable) Set(canonical string, synonyms ...string) {
	if canonical == "" {
		return
	}
	alts := make([]string, 0, len(synonyms))
	for _, s := range synonyms {
		if s != "" {
			alts = append(alts, s)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[canonical]; !ok {
		t.order = append(t.order, canonical)
	}
	t.entries[canonical] = alts
}

// Lookup returns a copy of the alternates of canonical.
func (t *SynonymTable) Lookup(canonical string) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	alts, ok := t.entries[canonical]
	if !ok {
		return nil, false
	}
	return append([]string(nil), alts...), true
}

// Entries returns a copy of the table in iteration order.
func (t *SynonymTable) Entries() []SynonymEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SynonymEntry, 0, len(t.order))
	for _, c := range t.order {
		out = append(out, SynonymEntry{Canonical: c, Synonyms: append([]string(nil), t.entries[c]...)})
	}
	return out
}

// Len returns the number of canonical phrases.
func (t *SynonymTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// LoadFile merges a YAML synonyms file into the table. The file is a
// mapping of canonical phrase to a list of alternates; mapping order is
// kept as iteration order for new canonicals.
//
//	小红书: [RED, 种草平台]
//	营销: [推广]
func (t *SynonymTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return amerrors.New(amerrors.ErrCodeFileNotFound, "synonyms file not found: "+path, err)
		}
		return fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return amerrors.ConfigError("invalid synonyms file "+path, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return amerrors.ConfigError("synonyms file must be a mapping of phrase to list: "+path, nil)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		var alts []string
		if err := val.Decode(&alts); err != nil {
			return amerrors.ConfigError(fmt.Sprintf("synonyms for %q must be a list (line %d)", key.Value, val.Line), err)
		}
		t.Set(key.Value, alts...)
	}
	return nil
}

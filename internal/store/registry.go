package store

import (
	"sort"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Lexical backend names.
const (
	LexicalMemory = "memory"
	LexicalBleve  = "bleve"
)

// LexicalFactory constructs a lexical index.
type LexicalFactory func(cfg BM25Config) (LexicalIndex, error)

// LexicalRegistry maps backend names to constructors. It is built once at
// startup and passed to whatever needs to construct an index.
type LexicalRegistry struct {
	factories map[string]LexicalFactory
}

// NewLexicalRegistry returns a registry with the memory and bleve backends.
func NewLexicalRegistry() *LexicalRegistry {
	r := &LexicalRegistry{factories: make(map[string]LexicalFactory)}
	r.Register(LexicalMemory, func(cfg BM25Config) (LexicalIndex, error) {
		return NewMemoryIndex(cfg), nil
	})
	r.Register(LexicalBleve, func(BM25Config) (LexicalIndex, error) {
		return NewBleveIndex(), nil
	})
	return r
}

// Register adds or replaces a backend.
func (r *LexicalRegistry) Register(name string, factory LexicalFactory) {
	r.factories[strings.ToLower(name)] = factory
}

// New constructs the named backend. An empty name selects memory.
func (r *LexicalRegistry) New(name string, cfg BM25Config) (LexicalIndex, error) {
	if name == "" {
		name = LexicalMemory
	}
	factory, ok := r.factories[strings.ToLower(name)]
	if !ok {
		return nil, amerrors.Newf(amerrors.ErrCodeUnknownBackend,
			"unknown lexical backend %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return factory(cfg)
}

// Names returns the registered backend names, sorted.
func (r *LexicalRegistry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

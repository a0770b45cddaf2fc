package dense

import (
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Dense backend names.
const (
	BackendHNSW = "hnsw"
	BackendNone = "none"
)

// Options carries what a dense factory may need.
type Options struct {
	// Embedder featurizes text. Nil uses a HashEmbedder.
	Embedder embed.Embedder

	// Dimensions sizes the default HashEmbedder.
	Dimensions int

	// CacheSize is the query vector LRU size.
	CacheSize int

	Workers         int
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
}

// Factory constructs a dense adapter.
type Factory func(opts Options) (Adapter, error)

// Registry maps dense backend names to constructors.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the hnsw and none backends.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(BackendHNSW, newHNSWAdapter)
	r.Register(BackendNone, func(Options) (Adapter, error) {
		return Disabled{}, nil
	})
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[strings.ToLower(name)] = factory
}

// New constructs the named backend.
func (r *Registry) New(name string, opts Options) (Adapter, error) {
	factory, ok := r.factories[strings.ToLower(name)]
	if !ok {
		return nil, amerrors.Newf(amerrors.ErrCodeUnknownBackend,
			"unknown dense backend %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return factory(opts)
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHNSWAdapter(opts Options) (Adapter, error) {
	embedder := opts.Embedder
	if embedder == nil {
		embedder = embed.NewHashEmbedder(opts.Dimensions)
	}
	embedder = embed.NewCachedEmbedder(embedder, opts.CacheSize)

	vector := NewVectorAdapter(embedder, store.DefaultVectorStoreConfig(embedder.Dimensions()))
	pool, err := NewPool(BackendHNSW, vector, PoolConfig{
		Workers:         opts.Workers,
		Timeout:         opts.Timeout,
		BreakerFailures: opts.BreakerFailures,
		BreakerReset:    opts.BreakerReset,
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

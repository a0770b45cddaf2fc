// Package embed turns text into vectors for the local dense adapter.
//
// Model inference is out of scope for amanrag; the built-in HashEmbedder is
// a deterministic hashed bag-of-tokens featurizer that gives the HNSW
// backend something meaningful to search without a model. Real embedding
// services plug in through the Embedder interface.
package embed

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used in cache keys.
	ModelName() string

	// Close releases resources.
	Close() error
}

package driven

import "context"

// EmbeddingService maps text to vectors for the flat vector index.
//
// The same text must always produce the same vector under one model and
// dimension. A vector built under a different model is meaningless to the
// index, so changing either requires re-ingesting every document.
// Offline deployments use the feature-hashing embedder; Ollama serves
// local models such as nomic-embed-text.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length. The index refuses vectors of any
	// other length.
	Dimensions() int

	ModelName() string

	// Ping checks the backend is usable before the first ingest or query.
	// In-process embedders always succeed.
	Ping(ctx context.Context) error

	Close() error
}

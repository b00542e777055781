package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// VectorIndex stores normalized embeddings with per-vector classification
// metadata and answers exact inner-product similarity queries.
//
// Add and DeleteDocument take exclusive access; Search and Save may run
// concurrently with each other.
type VectorIndex interface {
	// Add inserts one vector per chunk. Lengths must match and every vector
	// must have the index dimension. Existing entries with the same chunk id
	// are replaced.
	Add(ctx context.Context, vectors [][]float32, chunks []domain.Chunk) error

	// DeleteDocument removes every entry for a document and returns the count.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// Search returns up to TopK hits at or below the classification ceiling
	// that satisfy the metadata filters, by descending similarity.
	Search(ctx context.Context, query []float32, q VectorQuery) ([]VectorHit, error)

	// Save persists the index atomically.
	Save(ctx context.Context) error

	// Load replaces the in-memory index with the persisted one.
	// NotFound and Corrupt are states, not errors; a dimension mismatch
	// and I/O failures are errors.
	Load(ctx context.Context) (LoadResult, error)

	// Dirty reports whether the index changed since it was last loaded or
	// saved. A Corrupt load leaves it clean.
	Dirty() bool

	// Len returns the number of stored vectors.
	Len() int

	// Dimension returns the configured vector size.
	Dimension() int

	// Stats summarises the stored vectors.
	Stats() domain.IndexStats

	// Close releases resources.
	Close() error
}

// VectorQuery configures a similarity search.
type VectorQuery struct {
	TopK    int
	Ceiling domain.Classification
	Filters map[string]string
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the inner product with the normalized query, in [-1, 1].
	Similarity float64

	// Classification is the stored classification of the chunk.
	Classification domain.Classification

	// Metadata is a copy of the stored chunk metadata.
	Metadata map[string]string

	// Preview is truncated chunk text kept with the vector.
	Preview string
}

// LoadState is the outcome of loading a persisted index.
type LoadState int

// Load states.
const (
	LoadStateNotFound LoadState = iota
	LoadStateLoaded
	LoadStateCorrupt
)

// String returns a lower-case state name.
func (s LoadState) String() string {
	switch s {
	case LoadStateLoaded:
		return "loaded"
	case LoadStateNotFound:
		return "not_found"
	case LoadStateCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadResult reports what Load found.
type LoadResult struct {
	State LoadState

	// Count is the number of vectors loaded.
	Count int

	// Reason explains a Corrupt state. It wraps domain.ErrDecryption for
	// authentication failures and domain.ErrCorrupt for decode failures.
	Reason error
}

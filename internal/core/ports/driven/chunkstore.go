package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// ChunkStore is the durable metadata store: chunk text and metadata keyed
// by chunk id, with a full-text projection kept consistent with writes.
// A search never observes a partially written batch.
type ChunkStore interface {
	// InsertChunks upserts chunks by id in a single transaction.
	InsertChunks(ctx context.Context, chunks []domain.Chunk) error

	// ReplaceDocument records the document and swaps its chunk set
	// in a single transaction.
	ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// GetChunk returns a chunk by id, or domain.ErrNotFound.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// SearchText returns chunks ranked by term relevance.
	// Ranking is deterministic for a fixed corpus and query.
	// Results are not classification-filtered.
	SearchText(ctx context.Context, query string, limit int) ([]domain.Chunk, error)

	// ListDocuments returns every recorded document.
	ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

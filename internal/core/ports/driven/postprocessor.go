package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// PostProcessor is one stage of turning a normalised document into the
// chunks that get embedded and indexed. The first stage receives nil and
// creates chunks; later stages refine what they are given.
//
// Every chunk a stage returns must carry the document's id and
// classification. A stage never raises or lowers a chunk's level.
type PostProcessor interface {
	// Name is the key used in the [pipeline] config table.
	Name() string
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline runs the configured stages for ingestion.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}

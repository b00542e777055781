package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// Normaliser extracts plain text from the bytes of one file format.
type Normaliser interface {
	// Extensions returns the lower-case file extensions handled, with the
	// leading dot.
	Extensions() []string

	// Normalise converts raw file content to plain text.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Chunking is handled by the PostProcessor pipeline.
type NormaliseResult struct {
	// Text is the extracted plain text.
	Text string

	// Title is the document heading, or the file name when there is none.
	Title string
}

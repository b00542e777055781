package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// DocumentLoader reads a file into a document ready for ingestion.
type DocumentLoader interface {
	// Load reads the file at path. Defaults supplies metadata values used
	// when the file does not declare its own.
	Load(ctx context.Context, path string, defaults map[string]string) (*domain.Document, error)

	// Supports reports whether the loader handles the file.
	Supports(path string) bool

	// Expand resolves files and directories into the sorted, de-duplicated
	// absolute paths of every supported file beneath them.
	Expand(paths []string) ([]string, error)
}

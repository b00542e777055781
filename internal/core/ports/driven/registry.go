package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// NormaliserRegistry selects a normaliser by file extension.
type NormaliserRegistry interface {
	// Normalise transforms a raw document using the normaliser registered
	// for its extension.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)

	// Register adds a normaliser. A later registration for the same
	// extension replaces the earlier one.
	Register(normaliser Normaliser)

	// Supports reports whether a normaliser handles the path's extension.
	Supports(path string) bool

	// Extensions returns all handled extensions, sorted.
	Extensions() []string
}

package driving

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// SystemService owns the lifecycle of persistent state.
type SystemService interface {
	// Start loads the vector index and records a start event. A corrupt
	// index starts empty and is reported in the status.
	Start(ctx context.Context) (SystemStatus, error)

	// Stop saves the vector index and records a stop event.
	Stop(ctx context.Context) error

	// Stats summarises the vector index.
	Stats() domain.IndexStats
}

// SystemStatus describes the state found at start-up.
type SystemStatus struct {
	IndexState string
	Index      domain.IndexStats

	// Warning is set when the index must be rebuilt.
	Warning string
}

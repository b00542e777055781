package driving

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// QueryService answers questions from the indexed corpus.
type QueryService interface {
	// Query authenticates the user, checks the query permission, runs the
	// retrieval pipeline and audits the outcome. Denials are returned as a
	// Response with Denied set, not as an error.
	Query(ctx context.Context, userID, query string, opts QueryOptions) (*domain.Response, error)
}

// QueryOptions overrides configured retrieval settings for one query.
// Zero values fall back to configuration.
type QueryOptions struct {
	TopK      int
	Mode      domain.RetrievalMode
	Threshold *float64
	Filters   map[string]string
	NoRerank  bool
}

package query

import "errors"

// ErrNoQueryService indicates that no query service was provided.
var ErrNoQueryService = errors.New("query service is required")

package tui

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("tui: query service is required")

// ErrMissingUser is returned when no acting user is given.
var ErrMissingUser = errors.New("tui: acting user is required")

// Package mcp provides an MCP (Model Context Protocol) server adapter for Bastion.
// It lets AI assistants query the classified corpus over stdio, acting as a
// single configured user.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// ErrMissingUser is returned when no acting user is configured.
var ErrMissingUser = errors.New("mcp: acting user is required")

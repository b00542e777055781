package mcp

import (
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the MCP server.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Audit reads the audit log. Optional.
	Audit driving.AuditService

	// System exposes index statistics. Optional.
	System driving.SystemService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}

// Package tui provides an interactive query console.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

// Ports aggregates the driving ports the console uses.
type Ports struct {
	// Query answers questions as the acting user.
	Query driving.QueryService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}

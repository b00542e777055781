// Package messages defines Bubbletea message types for the console.
package messages

import (
	"github.com/custodia-labs/bastion/internal/core/domain"
)

// QueryCompleted carries a query outcome back to the model.
type QueryCompleted struct {
	Query    string
	Response *domain.Response
	Err      error
}

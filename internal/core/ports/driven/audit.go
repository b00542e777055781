package driven

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// AuditLog is an append-only record sequence.
// Append failures wrap domain.ErrAuditWrite and must reach the caller.
type AuditLog interface {
	// Append writes one event. ID and Timestamp are filled when empty.
	Append(ctx context.Context, event domain.AuditEvent) error

	// Read returns up to limit of the most recent readable events, oldest
	// first, and a failure entry for each unreadable record. A limit of
	// zero or less returns all events.
	Read(ctx context.Context, limit int) (domain.AuditReadResult, error)

	// Verify walks the hash chain over every record.
	Verify(ctx context.Context) (domain.AuditVerifyReport, error)

	// Close releases resources.
	Close() error
}

package driving

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// AuditService exposes the audit log to users holding view_logs.
type AuditService interface {
	// Recent returns up to limit of the most recent events.
	Recent(ctx context.Context, userID string, limit int) (domain.AuditReadResult, error)

	// Verify checks the hash chain of the whole log.
	Verify(ctx context.Context, userID string) (domain.AuditVerifyReport, error)
}

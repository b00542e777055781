package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure AuditService implements the interface.
var _ driving.AuditService = (*AuditService)(nil)

// maxAuditDocIDs bounds the chunk ids recorded on a query event.
const maxAuditDocIDs = 5

// AuditService exposes the audit log to users holding view_logs.
type AuditService struct {
	gate     *Gate
	auditLog driven.AuditLog
}

// NewAuditService creates a new audit service.
func NewAuditService(gate *Gate, auditLog driven.AuditLog) *AuditService {
	return &AuditService{gate: gate, auditLog: auditLog}
}

// Recent returns up to limit of the most recent readable events.
func (s *AuditService) Recent(ctx context.Context, userID string, limit int) (domain.AuditReadResult, error) {
	if err := s.authorize(ctx, userID, "audit_recent"); err != nil {
		return domain.AuditReadResult{}, err
	}
	result, err := s.auditLog.Read(ctx, limit)
	if err != nil {
		return domain.AuditReadResult{}, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}

// Verify walks the hash chain of the whole log.
func (s *AuditService) Verify(ctx context.Context, userID string) (domain.AuditVerifyReport, error) {
	if err := s.authorize(ctx, userID, "audit_verify"); err != nil {
		return domain.AuditVerifyReport{}, err
	}
	report, err := s.auditLog.Verify(ctx)
	if err != nil {
		return domain.AuditVerifyReport{}, fmt.Errorf("verify audit log: %w", err)
	}
	if !report.Intact() {
		logger.Warn("audit: chain verification found %d broken links, %d bad hashes, %d unreadable lines",
			len(report.BrokenLinks), len(report.BadHashes), len(report.Failures))
	}
	return report, nil
}

func (s *AuditService) authorize(ctx context.Context, userID, action string) error {
	user, err := s.gate.Authenticate(ctx, userID)
	if err != nil {
		return err
	}
	if s.gate.CheckPermission(user, domain.PermissionViewLogs) {
		return nil
	}
	if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
		Kind:           domain.AuditAccessDenied,
		UserID:         userID,
		Classification: user.Clearance,
		Details:        map[string]any{"action": action, "permission": string(domain.PermissionViewLogs)},
	}); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s lacks %s", domain.ErrAccessDenied, userID, domain.PermissionViewLogs)
}

// HashQuery returns the hex SHA-256 of the query text. Audit records carry
// this instead of the query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// queryDetails builds the details of a query audit event.
func queryDetails(query string, sources []domain.RetrievalResult) map[string]any {
	ids := make([]string, 0, min(len(sources), maxAuditDocIDs))
	for i := 0; i < len(sources) && i < maxAuditDocIDs; i++ {
		ids = append(ids, sources[i].ChunkID)
	}
	return map[string]any{
		"query_length":    utf8.RuneCountInString(query),
		"retrieved_count": len(sources),
		"doc_ids":         ids,
	}
}

// appendAudit writes an event. A failed write is reported on the error
// channel and returned so the guarded operation cannot proceed silently.
func appendAudit(ctx context.Context, log driven.AuditLog, event domain.AuditEvent) error {
	if err := log.Append(ctx, event); err != nil {
		logger.Error("audit write failed for %s event by %s: %v", event.Kind, event.UserID, err)
		return fmt.Errorf("%w: %v", domain.ErrAuditWrite, err)
	}
	return nil
}

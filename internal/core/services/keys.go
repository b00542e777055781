package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure KeyService implements the interface.
var _ driving.KeyService = (*KeyService)(nil)

// KeyService gates key operations behind configure_system. The audit log
// is optional because a log sealed under a replaced key cannot be read
// back.
type KeyService struct {
	gate     *Gate
	keys     driven.KeyStore
	auditLog driven.AuditLog
}

// NewKeyService creates a new key service.
func NewKeyService(gate *Gate, keys driven.KeyStore, auditLog driven.AuditLog) *KeyService {
	return &KeyService{gate: gate, keys: keys, auditLog: auditLog}
}

// Generate writes a new master key. Replacing an existing key requires force.
func (s *KeyService) Generate(ctx context.Context, userID string, force bool) (string, error) {
	user, err := s.gate.Authenticate(ctx, userID)
	if err != nil {
		return "", err
	}
	if !s.gate.CheckPermission(user, domain.PermissionConfigure) {
		if err := s.audit(ctx, domain.AuditEvent{
			Kind:           domain.AuditAccessDenied,
			UserID:         userID,
			Classification: user.Clearance,
			Details:        map[string]any{"action": "key_generate", "permission": string(domain.PermissionConfigure)},
		}); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s lacks %s", domain.ErrAccessDenied, userID, domain.PermissionConfigure)
	}

	fingerprint, err := s.keys.Generate(force)
	if err != nil {
		return "", err
	}
	logger.Warn("New master key written to %s; artifacts sealed under the previous key must be rebuilt", s.keys.Location())

	if err := s.audit(ctx, domain.AuditEvent{
		Kind:    domain.AuditConfigChange,
		UserID:  userID,
		Details: map[string]any{"key": "master_key", "fingerprint": fingerprint, "replaced": force},
		Success: true,
	}); err != nil {
		return fingerprint, err
	}
	return fingerprint, nil
}

// Fingerprint identifies the current master key for any active user.
func (s *KeyService) Fingerprint(ctx context.Context, userID string) (string, error) {
	if _, err := s.gate.Authenticate(ctx, userID); err != nil {
		return "", err
	}
	return s.keys.Fingerprint()
}

func (s *KeyService) audit(ctx context.Context, event domain.AuditEvent) error {
	if s.auditLog == nil {
		return nil
	}
	return appendAudit(ctx, s.auditLog, event)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure SystemService implements the interface.
var _ driving.SystemService = (*SystemService)(nil)

// SystemService loads and saves the index around a session.
type SystemService struct {
	index    driven.VectorIndex
	auditLog driven.AuditLog
	userID   string

	mu      sync.Mutex
	started bool
	status  driving.SystemStatus
}

// NewSystemService creates a system service. userID is recorded on the
// start and stop events.
func NewSystemService(index driven.VectorIndex, auditLog driven.AuditLog, userID string) *SystemService {
	return &SystemService{index: index, auditLog: auditLog, userID: userID}
}

// Start loads the index. Calling Start again before Stop returns the first
// status with fresh statistics and does not reload.
func (s *SystemService) Start(ctx context.Context) (driving.SystemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		status := s.status
		status.Index = s.index.Stats()
		return status, nil
	}

	result, err := s.index.Load(ctx)
	if err != nil {
		return driving.SystemStatus{}, fmt.Errorf("load index: %w", err)
	}

	status := driving.SystemStatus{IndexState: result.State.String()}
	switch result.State {
	case driven.LoadStateCorrupt:
		status.Warning = fmt.Sprintf("vector index unreadable, starting empty; re-ingest to rebuild: %v", result.Reason)
		if errors.Is(result.Reason, domain.ErrWrongKey) {
			status.Warning = "vector index was sealed with a different key, starting empty; re-ingest to rebuild"
		}
		logger.Warn("%s", status.Warning)
	case driven.LoadStateNotFound:
		logger.Info("No vector index found, starting empty")
	default:
		logger.Info("Loaded %d vectors", result.Count)
	}
	status.Index = s.index.Stats()

	if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
		Kind:   domain.AuditSystemStart,
		UserID: s.userID,
		Details: map[string]any{
			"index_state": status.IndexState,
			"vectors":     status.Index.Vectors,
		},
		Success: result.State != driven.LoadStateCorrupt,
	}); err != nil {
		return status, err
	}
	s.started = true
	s.status = status
	return status, nil
}

// Stop saves the index only if it is dirty, so an unreadable file found by
// Start stays on disk. The stop event is written even when saving fails.
func (s *SystemService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	s.status = driving.SystemStatus{}

	var saveErr error
	saved := s.index.Dirty()
	if saved {
		saveErr = s.index.Save(ctx)
	} else {
		logger.Debug("Vector index unchanged, not saving")
	}
	if saveErr != nil {
		logger.Error("Saving vector index failed: %v", saveErr)
		saveErr = fmt.Errorf("save index: %w", saveErr)
	}
	auditErr := appendAudit(ctx, s.auditLog, domain.AuditEvent{
		Kind:    domain.AuditSystemStop,
		UserID:  s.userID,
		Details: map[string]any{"vectors": s.index.Len(), "saved": saved && saveErr == nil},
		Success: saveErr == nil,
	})
	return errors.Join(saveErr, auditErr)
}

// Stats summarises the vector index.
func (s *SystemService) Stats() domain.IndexStats {
	return s.index.Stats()
}

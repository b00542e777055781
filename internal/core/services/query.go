package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService authenticates, authorizes and audits queries around the
// pipeline.
type QueryService struct {
	gate      *Gate
	pipeline  *Pipeline
	auditLog  driven.AuditLog
	retrieval domain.RetrievalSettings
	strict    bool
}

// NewQueryService creates a new query service.
func NewQueryService(
	gate *Gate,
	pipeline *Pipeline,
	auditLog driven.AuditLog,
	retrieval domain.RetrievalSettings,
	safety domain.SafetySettings,
) *QueryService {
	return &QueryService{
		gate:      gate,
		pipeline:  pipeline,
		auditLog:  auditLog,
		retrieval: retrieval,
		strict:    safety.Strict,
	}
}

// Query answers query for userID. Authentication, permission and clearance
// failures produce a Denied response. The answer is only returned once its
// audit record is written.
func (s *QueryService) Query(
	ctx context.Context, userID, query string, opts driving.QueryOptions,
) (*domain.Response, error) {
	user, err := s.gate.Authenticate(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownUser) || errors.Is(err, domain.ErrUserInactive) {
			return deniedResponse(query, err.Error()), nil
		}
		return nil, err
	}

	if !s.gate.CheckPermission(user, domain.PermissionQuery) {
		reason := fmt.Sprintf("ACCESS DENIED: %s lacks permission %s.", userID, domain.PermissionQuery)
		if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
			Kind:           domain.AuditAccessDenied,
			UserID:         userID,
			Classification: user.Clearance,
			QueryHash:      HashQuery(query),
			Details:        map[string]any{"reason": "permission", "permission": string(domain.PermissionQuery)},
		}); err != nil {
			return nil, err
		}
		return deniedResponse(query, reason), nil
	}

	run := s.runOptions(user, opts)
	resp, err := s.pipeline.Run(ctx, query, run)
	if err != nil {
		auditErr := appendAudit(ctx, s.auditLog, domain.AuditEvent{
			Kind:           domain.AuditQuery,
			UserID:         userID,
			Classification: user.Clearance,
			QueryHash:      HashQuery(query),
			Details:        map[string]any{"error": err.Error()},
			Success:        false,
		})
		return nil, errors.Join(err, auditErr)
	}
	if resp.Denied {
		return resp, nil
	}

	if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
		Kind:           domain.AuditQuery,
		UserID:         userID,
		Classification: resp.Classification,
		QueryHash:      HashQuery(query),
		Details:        queryDetails(query, resp.Sources),
		Success:        true,
	}); err != nil {
		return nil, err
	}
	logger.Debug("Query by %s released at %s", userID, resp.Classification)
	return resp, nil
}

// runOptions merges per-query overrides with configured settings.
func (s *QueryService) runOptions(user domain.User, opts driving.QueryOptions) RunOptions {
	mode := opts.Mode
	if !mode.IsValid() {
		mode = s.retrieval.Mode
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = s.retrieval.TopK
	}

	threshold := s.retrieval.SimilarityThreshold
	if mode == domain.RetrievalModeHybrid {
		threshold = s.retrieval.FusedThreshold
	}
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	clearance := user.Clearance
	return RunOptions{
		UserID:    user.ID,
		Clearance: &clearance,
		Mode:      mode,
		TopK:      topK,
		Threshold: threshold,
		Filters:   opts.Filters,
		Rerank:    s.retrieval.Rerank && !opts.NoRerank,
		Strict:    s.strict,
	}
}

func deniedResponse(query, reason string) *domain.Response {
	return &domain.Response{
		Query:        query,
		Answer:       reason,
		Denied:       true,
		DenialReason: reason,
	}
}

package mcp

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	response *domain.Response
	err      error

	gotUser  string
	gotQuery string
	gotOpts  driving.QueryOptions
}

func (m *mockQueryService) Query(
	_ context.Context,
	userID, query string,
	opts driving.QueryOptions,
) (*domain.Response, error) {
	m.gotUser, m.gotQuery, m.gotOpts = userID, query, opts
	return m.response, m.err
}

// mockAuditService is a mock implementation of driving.AuditService.
type mockAuditService struct {
	result   domain.AuditReadResult
	err      error
	gotUser  string
	gotLimit int
}

func (m *mockAuditService) Recent(_ context.Context, userID string, limit int) (domain.AuditReadResult, error) {
	m.gotUser, m.gotLimit = userID, limit
	return m.result, m.err
}

func (m *mockAuditService) Verify(_ context.Context, _ string) (domain.AuditVerifyReport, error) {
	return domain.AuditVerifyReport{}, m.err
}

// mockSystemService is a mock implementation of driving.SystemService.
type mockSystemService struct {
	stats domain.IndexStats
}

func (m *mockSystemService) Start(_ context.Context) (driving.SystemStatus, error) {
	return driving.SystemStatus{}, nil
}

func (m *mockSystemService) Stop(_ context.Context) error { return nil }

func (m *mockSystemService) Stats() domain.IndexStats { return m.stats }

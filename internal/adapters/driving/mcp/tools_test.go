package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

func secretResponse() *domain.Response {
	return &domain.Response{
		Query:          "What is the radar frequency?",
		Answer:         "Its peak frequency is 9.4 GHz. [Source: radar_specs.txt]",
		Classification: domain.Secret,
		IsValid:        true,
		Warning:        "This response contains SECRET information.",
		Sources: []domain.RetrievalResult{{
			ChunkID:        "radar-1_chunk_0",
			Score:          0.91,
			Classification: domain.Secret,
			Metadata: map[string]string{
				domain.MetaSource:     "radar_specs.txt",
				domain.MetaDocumentID: "radar-1",
			},
		}},
	}
}

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer and sources as the configured user", func(t *testing.T) {
		query := &mockQueryService{response: secretResponse()}
		server, err := NewServer(&Ports{Query: query}, "analyst_s")
		require.NoError(t, err)

		_, output, err := server.handleQuery(ctx, nil, QueryInput{Query: "What is the radar frequency?", TopK: 3, Mode: "Hybrid"})

		require.NoError(t, err)
		assert.Equal(t, "analyst_s", query.gotUser)
		assert.Equal(t, 3, query.gotOpts.TopK)
		assert.Equal(t, domain.RetrievalModeHybrid, query.gotOpts.Mode)
		assert.Contains(t, output.Answer, "9.4 GHz")
		assert.Equal(t, "SECRET", output.Classification)
		assert.True(t, output.Valid)
		require.Len(t, output.Sources, 1)
		assert.Equal(t, "radar-1", output.Sources[0].DocumentID)
		assert.Equal(t, "radar_specs.txt", output.Sources[0].Source)
		assert.Equal(t, 0.91, output.Sources[0].Score)
	})

	t.Run("denied response withholds sources", func(t *testing.T) {
		resp := secretResponse()
		resp.Denied = true
		resp.Answer = "ACCESS DENIED: Documents are classified as SECRET. Your clearance level: CONFIDENTIAL."
		server, err := NewServer(&Ports{Query: &mockQueryService{response: resp}}, "analyst_c")
		require.NoError(t, err)

		_, output, err := server.handleQuery(ctx, nil, QueryInput{Query: "radar"})

		require.NoError(t, err)
		assert.True(t, output.Denied)
		assert.Empty(t, output.Sources)
		assert.Contains(t, output.Answer, "ACCESS DENIED")
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		query := &mockQueryService{response: secretResponse()}
		server, err := NewServer(&Ports{Query: query}, "analyst_s")
		require.NoError(t, err)

		_, _, err = server.handleQuery(ctx, nil, QueryInput{Query: "radar", Mode: "fuzzy"})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Empty(t, query.gotQuery)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		query := &mockQueryService{err: errors.New("embedding service unavailable")}
		server, err := NewServer(&Ports{Query: query}, "analyst_s")
		require.NoError(t, err)

		_, _, err = server.handleQuery(ctx, nil, QueryInput{Query: "radar"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding service unavailable")
	})
}

func TestServer_handleAuditRecent(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns events", func(t *testing.T) {
		audit := &mockAuditService{result: domain.AuditReadResult{
			Events: []domain.AuditEvent{{
				ID:             "evt-1",
				Timestamp:      stamp,
				Kind:           domain.AuditAccessDenied,
				UserID:         "analyst_c",
				Classification: domain.Secret,
				Details:        map[string]any{"reason": "clearance"},
			}},
			Failures: []domain.AuditFailure{{Line: 4, Err: domain.ErrTampered}},
		}}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Audit: audit}, "admin")
		require.NoError(t, err)

		_, output, err := server.handleAuditRecent(ctx, nil, AuditRecentInput{Limit: 5})

		require.NoError(t, err)
		assert.Equal(t, "admin", audit.gotUser)
		assert.Equal(t, 5, audit.gotLimit)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, 1, output.Unreadable)
		assert.Equal(t, "access_denied", output.Events[0].Kind)
		assert.Equal(t, "SECRET", output.Events[0].Classification)
		assert.Equal(t, "2026-03-01T12:00:00Z", output.Events[0].Timestamp)
	})

	t.Run("default limit is 20", func(t *testing.T) {
		audit := &mockAuditService{}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Audit: audit}, "admin")
		require.NoError(t, err)

		_, output, err := server.handleAuditRecent(ctx, nil, AuditRecentInput{})

		require.NoError(t, err)
		assert.Equal(t, 20, audit.gotLimit)
		assert.Zero(t, output.Count)
	})

	t.Run("permission error is returned", func(t *testing.T) {
		audit := &mockAuditService{err: domain.ErrAccessDenied}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Audit: audit}, "operator")
		require.NoError(t, err)

		_, _, err = server.handleAuditRecent(ctx, nil, AuditRecentInput{})

		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})
}

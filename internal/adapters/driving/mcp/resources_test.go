package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleIndexStatsResource(t *testing.T) {
	ctx := context.Background()
	system := &mockSystemService{stats: domain.IndexStats{
		Vectors:   7,
		Documents: 2,
		Dimension: 384,
		ByClassification: map[domain.Classification]int{
			domain.Secret:       5,
			domain.Unclassified: 2,
		},
	}}
	server, err := NewServer(&Ports{Query: &mockQueryService{}, System: system}, "operator")
	require.NoError(t, err)

	t.Run("returns stats as JSON", func(t *testing.T) {
		result, err := server.handleIndexStatsResource(ctx, makeReadResourceRequest("bastion://index/stats"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)

		var got indexStats
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &got))
		assert.Equal(t, 7, got.Vectors)
		assert.Equal(t, 2, got.Documents)
		assert.Equal(t, 5, got.ByClassification["SECRET"])
	})

	t.Run("unknown URI is not found", func(t *testing.T) {
		_, err := server.handleIndexStatsResource(ctx, makeReadResourceRequest("bastion://index/other"))

		assert.Error(t, err)
	})
}

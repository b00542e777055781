package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for Bastion resources.
	uriScheme = "bastion://"

	indexStatsURI = uriScheme + "index/stats"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.System == nil {
		return
	}
	s.server.AddResource(&mcp.Resource{
		URI:         indexStatsURI,
		Name:        "index-stats",
		Description: "Vector and document counts per classification level",
		MIMEType:    "application/json",
	}, s.handleIndexStatsResource)
}

// indexStats is the JSON form of domain.IndexStats.
type indexStats struct {
	Vectors          int            `json:"vectors"`
	Documents        int            `json:"documents"`
	Dimension        int            `json:"dimension"`
	ByClassification map[string]int `json:"by_classification"`
}

// handleIndexStatsResource summarises the vector index for any caller.
func (s *Server) handleIndexStatsResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if req.Params.URI != indexStatsURI {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	stats := s.ports.System.Stats()
	out := indexStats{
		Vectors:          stats.Vectors,
		Documents:        stats.Documents,
		Dimension:        stats.Dimension,
		ByClassification: make(map[string]int, len(stats.ByClassification)),
	}
	for level, n := range stats.ByClassification {
		out.ByClassification[level.String()] = n
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling index stats: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

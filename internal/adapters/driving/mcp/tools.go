package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

// defaultAuditLimit applies when audit_recent is called without a limit.
const defaultAuditLimit = 20

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query string `json:"query" jsonschema:"the question to answer from the indexed documents"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of passages to use (default from configuration)"`
	Mode  string `json:"mode,omitempty" jsonschema:"retrieval mode: semantic or hybrid"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer         string         `json:"answer"`
	Classification string         `json:"classification"`
	Valid          bool           `json:"valid"`
	Denied         bool           `json:"denied"`
	Warning        string         `json:"warning,omitempty"`
	Sources        []SourceOutput `json:"sources"`
}

// SourceOutput represents one passage behind an answer.
type SourceOutput struct {
	DocumentID     string  `json:"document_id"`
	Source         string  `json:"source"`
	Classification string  `json:"classification"`
	Score          float64 `json:"score"`
}

// AuditRecentInput is the input schema for the audit_recent tool.
type AuditRecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of events to return (default 20)"`
}

// AuditRecentOutput is the output schema for the audit_recent tool.
type AuditRecentOutput struct {
	Events     []AuditEventOutput `json:"events"`
	Count      int                `json:"count"`
	Unreadable int                `json:"unreadable"`
}

// AuditEventOutput represents one audit record.
type AuditEventOutput struct {
	ID             string         `json:"id"`
	Timestamp      string         `json:"timestamp"`
	Kind           string         `json:"kind"`
	UserID         string         `json:"user_id"`
	Classification string         `json:"classification"`
	Success        bool           `json:"success"`
	Details        map[string]any `json:"details,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "query",
		Description: "Answer a question from the classified document corpus. " +
			"Answers above the acting user's clearance are denied.",
	}, s.handleQuery)

	if s.ports.Audit != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "audit_recent",
			Description: "List the most recent audit events (requires view_logs)",
		}, s.handleAuditRecent)
	}
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	opts := driving.QueryOptions{TopK: input.TopK}
	if input.Mode != "" {
		mode := domain.RetrievalMode(strings.ToLower(input.Mode))
		if !mode.IsValid() {
			return nil, QueryOutput{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, input.Mode)
		}
		opts.Mode = mode
	}

	resp, err := s.ports.Query.Query(ctx, s.userID, input.Query, opts)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Answer:         resp.Answer,
		Classification: resp.Classification.String(),
		Valid:          resp.IsValid,
		Denied:         resp.Denied,
		Warning:        resp.Warning,
		Sources:        make([]SourceOutput, 0, len(resp.Sources)),
	}
	if resp.Denied {
		return nil, output, nil
	}
	for _, src := range resp.Sources {
		output.Sources = append(output.Sources, SourceOutput{
			DocumentID:     src.DocumentID(),
			Source:         src.Source(),
			Classification: src.Classification.String(),
			Score:          src.Score,
		})
	}

	return nil, output, nil
}

// handleAuditRecent handles the audit_recent tool invocation.
func (s *Server) handleAuditRecent(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AuditRecentInput,
) (*mcp.CallToolResult, AuditRecentOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	result, err := s.ports.Audit.Recent(ctx, s.userID, limit)
	if err != nil {
		return nil, AuditRecentOutput{}, err
	}

	output := AuditRecentOutput{
		Events:     make([]AuditEventOutput, len(result.Events)),
		Count:      len(result.Events),
		Unreadable: len(result.Failures),
	}
	for i, e := range result.Events {
		output.Events[i] = AuditEventOutput{
			ID:             e.ID,
			Timestamp:      e.Timestamp.UTC().Format(time.RFC3339Nano),
			Kind:           e.Kind.String(),
			UserID:         e.UserID,
			Classification: e.Classification.String(),
			Success:        e.Success,
			Details:        e.Details,
		}
	}

	return nil, output, nil
}

package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server is the MCP server for Bastion. Every call acts as userID, so the
// gate applies that user's permissions and clearance.
type Server struct {
	ports  *Ports
	userID string
	server *mcp.Server
}

// NewServer creates a new MCP server acting as userID.
func NewServer(ports *Ports, userID string) (*Server, error) {
	if ports == nil {
		return nil, fmt.Errorf("validating ports: %w", ErrMissingQueryService)
	}
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if userID == "" {
		return nil, ErrMissingUser
	}

	impl := &mcp.Implementation{
		Name:    "bastion",
		Version: Version,
	}

	s := &Server{
		ports:  ports,
		userID: userID,
		server: mcp.NewServer(impl, nil),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until the context is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

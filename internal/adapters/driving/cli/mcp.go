package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bastion/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server communicates over stdio using JSON-RPC. Every tool call acts as the
user given by --user (or BASTION_USER), so answers are limited to that user's
clearance and every call is audited.

Tools:
  query         answer a question from the indexed documents
  audit_recent  list recent audit events (requires view_logs)

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "bastion": {
        "command": "/path/to/bastion",
        "args": ["mcp", "--user", "analyst_s"]
      }
    }
  }`,
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeFull),
	RunE:        runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	ports := &mcp.Ports{
		Query:  queryService,
		Audit:  auditService,
		System: systemService,
	}

	server, err := mcp.NewServer(ports, userID)
	if err != nil {
		return err
	}

	return server.Run(cmd.Context())
}

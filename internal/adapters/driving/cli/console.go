package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bastion/internal/adapters/driving/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Ask questions interactively",
	Long: `Open an interactive console that answers questions as the acting user.

Controls:
  enter    Ask the typed question
  tab      Cycle retrieval mode (default, semantic, hybrid)
  pgup/dn  Scroll the answer
  esc      Clear the input
  ctrl+c   Quit`,
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeFull),
	RunE:        runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}
	if !isInteractive(cmd.InOrStdin()) {
		return errors.New("console needs an interactive terminal; use 'bastion query' instead")
	}
	return tui.Run(cmd.Context(), &tui.Ports{Query: queryService}, userID)
}

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change settings stored in config.toml under the data directory.

Environment variables prefixed with BASTION_ override the file.`,
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeKeys),
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show current settings",
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeKeys),
	RunE:        runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting and save it. Requires the configure_system permission.

Keys use dotted names, for example:
  retrieval.mode            semantic or hybrid
  retrieval.top_k           passages used per answer
  security.enforcement      deny or filter
  embedding.provider        hash or ollama
  llm.provider              extractive or ollama
  users.<id>.roles          comma-separated role names`,
	Args:        cobra.ExactArgs(2),
	Annotations: needs(ScopeFull),
	RunE:        runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()
	cmd.Printf("Data directory: %s\n", settings.DataDir)
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Mode: %s\n", settings.Retrieval.Mode.Description())
	cmd.Printf("  Top K: %d\n", settings.Retrieval.TopK)
	cmd.Printf("  Similarity threshold: %.2f\n", settings.Retrieval.SimilarityThreshold)
	cmd.Printf("  Semantic weight: %.2f\n", settings.Retrieval.SemanticWeight)
	cmd.Printf("  Re-rank: %s\n", yesNo(settings.Retrieval.Rerank))
	cmd.Println()

	cmd.Println("[Chunking]")
	cmd.Printf("  Size: %d characters\n", settings.Chunking.Size)
	cmd.Printf("  Overlap: %d characters\n", settings.Chunking.Overlap)
	cmd.Println()

	cmd.Println("[Security]")
	cmd.Printf("  Encryption: %s\n", yesNo(settings.Security.Encryption))
	cmd.Printf("  Key file: %s\n", settings.Security.KeyFile)
	cmd.Printf("  Default classification: %s\n", settings.Security.DefaultClassification)
	cmd.Printf("  Enforcement: %s\n", settings.Security.Enforcement)
	cmd.Printf("  Offline only: %s\n", yesNo(settings.Security.Offline))
	cmd.Println()

	cmd.Println("[Safety]")
	cmd.Printf("  Strict: %s\n", yesNo(settings.Safety.Strict))
	cmd.Printf("  Minimum overlap: %.2f\n", settings.Safety.MinOverlap)
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	if !settings.Embedding.Provider.IsOffline() {
		cmd.Printf("  Model: %s\n", settings.Embedding.Model)
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	cmd.Println()

	cmd.Println("[LLM]")
	cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
	if !settings.LLM.Provider.IsOffline() {
		cmd.Printf("  Model: %s\n", settings.LLM.Model)
		cmd.Printf("  Base URL: %s\n", settings.LLM.BaseURL)
		cmd.Printf("  Temperature: %.2f\n", settings.LLM.Temperature)
		cmd.Printf("  Max tokens: %d\n", settings.LLM.MaxTokens)
	}
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'bastion settings set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := strings.TrimSpace(args[0]), args[1]
	if err := settingsService.Set(cmd.Context(), userID, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	if strings.HasPrefix(key, "embedding.") {
		cmd.Println("Embedding changes take effect for new vectors; re-ingest to rebuild the index.")
	}
	return nil
}

// isInteractive reports whether in is a terminal.
func isInteractive(in io.Reader) bool {
	f, ok := in.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// confirm asks a yes/no question. Anything but yes declines.
func confirm(cmd *cobra.Command, in io.Reader, question string) bool {
	cmd.Printf("%s [y/N]: ", question)
	answer := strings.ToLower(readLine(bufio.NewReader(in)))
	return answer == "y" || answer == "yes"
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

var indexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the vector index",
}

var indexStatsCmd = &cobra.Command{
	Use:         "stats",
	Short:       "Show vector index statistics",
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeFull),
	RunE:        runIndexStats,
}

func init() {
	indexStatsCmd.Flags().BoolVar(&indexJSON, "json", false, "Output statistics as JSON")
	indexCmd.AddCommand(indexStatsCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if systemService == nil {
		return errors.New("system service not configured")
	}

	stats := systemService.Stats()
	if indexJSON {
		counts := make(map[string]int, len(stats.ByClassification))
		for level, n := range stats.ByClassification {
			counts[level.String()] = n
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"vectors":           stats.Vectors,
			"dimension":         stats.Dimension,
			"documents":         stats.Documents,
			"by_classification": counts,
		})
	}

	cmd.Printf("Vectors:   %d\n", stats.Vectors)
	cmd.Printf("Documents: %d\n", stats.Documents)
	cmd.Printf("Dimension: %d\n", stats.Dimension)
	cmd.Println("By classification:")
	for _, level := range domain.Classifications() {
		cmd.Printf("  %-13s %d\n", level, stats.ByClassification[level])
	}
	return nil
}

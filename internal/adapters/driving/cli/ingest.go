package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

var (
	ingestClassification string
	ingestType           string
	ingestWatch          bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <paths...>",
	Short: "Index documents for retrieval",
	Long: `Load, chunk, embed and index text, markdown and HTML files.

Directories are walked recursively; hidden entries and unsupported files are
skipped. Each document needs a classification, taken from --classification or
from a "classification:" line at the top of the file. When both are present
the higher level wins. Re-ingesting a file replaces its previous chunks.

With --watch the paths are watched after the first pass and changed files are
re-ingested until interrupted.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: needs(ScopeFull),
	RunE:        runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestClassification, "classification", "c", "",
		"Classification for files without a marking (UNCLASSIFIED, CONFIDENTIAL, SECRET, TOP_SECRET)")
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "", "Document type (default: file extension)")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Watch the paths and re-ingest changed files")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	defaults, err := ingestDefaults()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	report, err := ingestService.IngestFiles(ctx, userID, args, defaults)
	printIngestReport(cmd, report)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if !ingestWatch {
		return nil
	}
	cmd.Printf("Watching %s for changes (Ctrl+C to stop)\n", strings.Join(args, ", "))
	return watchPaths(ctx, args, watchDebounce, func(ctx context.Context, changed []string) error {
		report, err := ingestService.IngestFiles(ctx, userID, changed, defaults)
		printIngestReport(cmd, report)
		return err
	})
}

// ingestDefaults builds the metadata applied to files that do not set it.
func ingestDefaults() (map[string]string, error) {
	defaults := make(map[string]string)
	if ingestClassification != "" {
		level, err := domain.ParseClassification(ingestClassification)
		if err != nil {
			return nil, err
		}
		defaults[domain.MetaClassification] = level.String()
	}
	if t := strings.TrimSpace(ingestType); t != "" {
		defaults[domain.MetaDocumentType] = t
	}
	return defaults, nil
}

func printIngestReport(cmd *cobra.Command, report *driving.IngestReport) {
	if report == nil {
		return
	}
	cmd.Printf("Ingested %d document(s), %d chunk(s)\n", report.Documents, report.Chunks)
	if len(report.Skipped) == 0 {
		return
	}
	cmd.Printf("Skipped %d:\n", len(report.Skipped))
	for _, s := range report.Skipped {
		name := s.Source
		if name == "" {
			name = s.DocumentID
		}
		cmd.Printf("  %s: %s\n", name, s.Reason)
	}
	logger.Debug("ingest: %d skipped", len(report.Skipped))
}

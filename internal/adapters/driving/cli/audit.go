package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

var (
	auditLimit int
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
	Long: `Commands for reading and verifying the encrypted audit log.

Both commands require the view_logs permission.`,
}

var auditListCmd = &cobra.Command{
	Use:         "list",
	Short:       "Show recent audit events",
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeFull),
	RunE:        runAuditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	Long: `Walk every audit record and check that each one decrypts, that its hash
matches its content and that it links to the record before it.`,
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeFull),
	RunE:        runAuditVerify,
}

func init() {
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Maximum number of events (0 for all)")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Output events as JSON")
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	if auditService == nil {
		return errors.New("audit service not configured")
	}
	if auditLimit < 0 {
		return fmt.Errorf("%w: --limit must not be negative", domain.ErrInvalidInput)
	}

	result, err := auditService.Recent(cmd.Context(), userID, auditLimit)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	if auditJSON {
		return writeJSON(cmd.OutOrStdout(), result.Events)
	}

	if len(result.Events) == 0 {
		cmd.Println("No audit events.")
	}
	for _, e := range result.Events {
		status := "ok"
		if !e.Success {
			status = "FAIL"
		}
		cmd.Printf("%s  %-13s %-4s %-12s %-12s %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Kind, status, e.UserID,
			e.Classification, formatDetails(e.Details))
	}
	for _, f := range result.Failures {
		cmd.Printf("line %d: unreadable: %v\n", f.Line, f.Err)
	}
	return nil
}

func runAuditVerify(cmd *cobra.Command, _ []string) error {
	if auditService == nil {
		return errors.New("audit service not configured")
	}

	report, err := auditService.Verify(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("verify audit log: %w", err)
	}

	cmd.Printf("Records: %d\n", report.Records)
	if report.Intact() {
		cmd.Println("Audit chain intact.")
		return nil
	}
	for _, line := range report.BrokenLinks {
		cmd.Printf("line %d: broken chain link\n", line)
	}
	for _, line := range report.BadHashes {
		cmd.Printf("line %d: record hash mismatch\n", line)
	}
	for _, f := range report.Failures {
		cmd.Printf("line %d: unreadable: %v\n", f.Line, f.Err)
	}
	return fmt.Errorf("audit chain verification failed: %d problem(s)",
		len(report.BrokenLinks)+len(report.BadHashes)+len(report.Failures))
}

// formatDetails renders details as sorted key=value pairs.
func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

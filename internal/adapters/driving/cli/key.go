package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var keyForce bool

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the master encryption key",
	Long: `Commands for the master key that the index and audit log keys derive from.

Keep the key file private. Replacing it makes every artifact sealed under the
old key unreadable: the index must be rebuilt by re-ingesting and the old
audit log can no longer be read.`,
}

var keyGenerateCmd = &cobra.Command{
	Use:         "generate",
	Short:       "Generate a new master key",
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeKeys),
	RunE:        runKeyGenerate,
}

var keyFingerprintCmd = &cobra.Command{
	Use:         "fingerprint",
	Short:       "Print the master key fingerprint",
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeKeys),
	RunE:        runKeyFingerprint,
}

func init() {
	keyGenerateCmd.Flags().BoolVarP(&keyForce, "force", "f", false, "Replace an existing key")
	keyCmd.AddCommand(keyGenerateCmd)
	keyCmd.AddCommand(keyFingerprintCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeyGenerate(cmd *cobra.Command, _ []string) error {
	if keyService == nil {
		return errors.New("key service not configured")
	}

	in := cmd.InOrStdin()
	if keyForce && isInteractive(in) &&
		!confirm(cmd, in, "Replacing the key makes the existing index and audit log unreadable. Continue?") {
		return errors.New("aborted")
	}

	fingerprint, err := keyService.Generate(cmd.Context(), userID, keyForce)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	cmd.Printf("Generated master key %s\n", fingerprint)
	if keyForce {
		cmd.Println("Re-ingest documents to rebuild the index under the new key.")
	}
	return nil
}

func runKeyFingerprint(cmd *cobra.Command, _ []string) error {
	if keyService == nil {
		return errors.New("key service not configured")
	}

	fingerprint, err := keyService.Fingerprint(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	cmd.Println(fingerprint)
	return nil
}

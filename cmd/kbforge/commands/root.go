package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kbforge",
		Short: "kbforge - Bedrock knowledge base lifecycle tool",
		Long: `kbforge provisions, syncs, queries, and tears down an Amazon Bedrock
knowledge base backed by S3 Vectors storage.

Features:
  - Idempotent provisioning of the full resource stack (S3 bucket,
    vector bucket and index, IAM role, knowledge base, data source)
  - Document upload and ingestion job polling with status reporting
  - Metadata-filtered retrieval-augmented queries and scripted checks
  - Best-effort teardown with per-resource outcome reporting`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newCleanupCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}

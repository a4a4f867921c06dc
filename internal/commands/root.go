package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgersync-dev/ledgersync/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ledgersync",
		Short:   "Reconcile external transactions against a payable/receivable ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newReverseCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgersync-dev/ledgersync/internal/recon"
	"github.com/ledgersync-dev/ledgersync/internal/statement"
)

func newSyncCommand() *cobra.Command {
	var configPath string
	var userID int64
	var provider string
	var file string
	var format string
	var dir string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation batch from a payload file",
		Long: `Reads raw transaction payloads and runs the normalize, match, upsert
pipeline for the given user.

With --file and --provider, the file holds one JSON payload per line.
With --file and --format, the file is a statement export parsed into
payloads. With --dir, every statement file in the directory is synced
as its own batch and moved to <dir>/processed on success.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (dir == "") {
				return fmt.Errorf("exactly one of --file or --dir is required")
			}

			_, st, runner, err := openStack(configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if dir != "" {
				return syncDir(cmd, runner, userID, dir, format)
			}

			var items []recon.Item
			if format != "" {
				items, err = parseStatement(file, format)
			} else {
				if provider == "" {
					return fmt.Errorf("--provider is required with a JSON-lines file")
				}
				items, err = readItems(file, provider)
			}
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no payloads in %s", file)
			}

			summary, runErr := runner.Run(cmd.Context(), userID, items)
			printSummary(summary)
			return runErr
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "ledgersync.yaml", "config file")
	cmd.Flags().Int64Var(&userID, "user", 0, "ledger owner id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&provider, "provider", "", "provider tag for JSON-lines payloads")
	cmd.Flags().StringVar(&file, "file", "", "payload or statement file")
	cmd.Flags().StringVar(&format, "format", "", "statement format (e.g. csv); empty means JSON lines")
	cmd.Flags().StringVar(&dir, "dir", "", "statement drop directory")

	return cmd
}

// syncDir runs one batch per statement file and moves each processed
// file out of the way so re-running the command is safe.
func syncDir(cmd *cobra.Command, runner *recon.Runner, userID int64, dir, format string) error {
	if format == "" {
		format = "csv"
	}

	files, err := statement.Scan(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No statement files in %s\n", dir)
		return nil
	}

	for _, f := range files {
		items, err := parseStatement(f.Path, format)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}

		fmt.Printf("%s:\n", f.Name)
		summary, runErr := runner.Run(cmd.Context(), userID, items)
		printSummary(summary)
		if runErr != nil {
			return runErr
		}

		if err := statement.MarkProcessed(dir, f.Name); err != nil {
			return err
		}
	}
	return nil
}

func parseStatement(path, format string) ([]recon.Item, error) {
	parser := statement.DefaultRegistry().Get(format)
	if parser == nil {
		return nil, fmt.Errorf("unknown statement format %q", format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening statement file: %w", err)
	}
	defer f.Close()

	return parser.Parse(f)
}

// readItems reads one JSON payload per line, skipping blank lines.
func readItems(path, provider string) ([]recon.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening payload file: %w", err)
	}
	defer f.Close()

	var items []recon.Item
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		items = append(items, recon.Item{Provider: provider, Payload: raw})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading payload file: %w", err)
	}
	return items, nil
}

func printSummary(summary recon.Summary) {
	fmt.Printf("Batch %s: %d created, %d reconciled, %d duplicates, %d failed\n",
		summary.BatchID, summary.Created, summary.Matched, summary.Duplicates, summary.Failed)
	for _, res := range summary.Results {
		if res.Outcome != recon.OutcomeFailed {
			continue
		}
		fmt.Printf("  failed: %s (description=%q amount=%q)\n",
			res.FailureReason, res.RawDescription, res.RawAmount)
	}
}

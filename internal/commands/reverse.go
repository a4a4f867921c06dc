package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgersync-dev/ledgersync/internal/config"
	"github.com/ledgersync-dev/ledgersync/internal/ledger"
	"github.com/ledgersync-dev/ledgersync/internal/model"
	"github.com/ledgersync-dev/ledgersync/internal/rules"
	"github.com/ledgersync-dev/ledgersync/internal/store"
	"github.com/ledgersync-dev/ledgersync/internal/store/gormstore"
)

func newReverseCommand() *cobra.Command {
	var configPath string
	var userID int64
	var recordID int64

	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Undo a settlement",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := gormstore.Open(cfg.Database.URI())
			if err != nil {
				return err
			}
			defer st.Close()

			var record model.LedgerRecord
			var spawned *model.LedgerRecord
			err = st.InTransaction(cmd.Context(), func(tx store.Store) error {
				svc := ledger.NewService(tx, rules.NewEngine(tx))
				var rerr error
				record, spawned, rerr = svc.Reverse(cmd.Context(), userID, recordID)
				return rerr
			})
			if err != nil {
				return fmt.Errorf("reversing record %d: %w", recordID, err)
			}

			fmt.Printf("Record %d is open\n", record.ID)
			if spawned != nil {
				fmt.Printf("Spawned record %d for correlation key %s\n", spawned.ID, *spawned.CorrelationKey)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "ledgersync.yaml", "config file")
	cmd.Flags().Int64Var(&userID, "user", 0, "ledger owner id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().Int64Var(&recordID, "record", 0, "record id (required)")
	_ = cmd.MarkFlagRequired("record")

	return cmd
}

package commands

import (
	"fmt"
	"net/http"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/ledgersync-dev/ledgersync/internal/server"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, runner, err := openStack(configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(st, runner)
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			log.Infof("[serve] listening on %s", addr)
			return http.ListenAndServe(addr, srv.Router())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "ledgersync.yaml", "config file")

	return cmd
}

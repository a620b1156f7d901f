package commands

import (
	"github.com/spf13/cobra"

	"github.com/laminacfg/lamina/pkg/api"
)

func newServeCommand() *cobra.Command {
	var listenAddress string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

The server exposes entity CRUD, resolution, validation, artifact
generation and the dashboard's UI config view, plus /metrics and
/healthz.`,
		Example: `  # Serve with the default configuration
  lamina serve

  # Serve on a different address
  lamina serve --listen :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			addr := rt.cfg.Server.ListenAddress
			if listenAddress != "" {
				addr = listenAddress
			}

			srv := api.NewServer(api.ServerConfig{
				ListenAddress:   addr,
				ReadTimeout:     rt.cfg.Server.ReadTimeout,
				WriteTimeout:    rt.cfg.Server.WriteTimeout,
				ShutdownTimeout: rt.cfg.Server.ShutdownTimeout,
			}, rt.service, rt.metrics, rt.logger.NewComponentLogger("api").Zerolog())

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddress, "listen", "", "listen address (overrides config)")

	return cmd
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/persistent-last-changed/internal/service/server"
)

var (
	// metricsAddress overrides metrics_addr from the config.
	metricsAddress string
	// watchConfig enables reloading on config file changes.
	watchConfig bool

	// serveCmd runs the sensors.
	serveCmd = &cobra.Command{
		Use:   "serve [listen-address]",
		Short: "Run the configured sensors.",
		Long: `Starts every configured sensor, restores their values from storage and
keeps them updated from the state-change feed.

The read API listens on listen_addr from the config unless an address is given
as argument (e.g. :9090). With --watch the sensors are rebuilt whenever the
configuration file changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signalContext()
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:     configPath,
				ListenAddress:  listenAddress,
				MetricsAddress: metricsAddress,
				Watch:          watchConfig,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	serveCmd.Flags().StringVarP(&metricsAddress, "metrics-addr", "m", "", "address of the Prometheus metrics endpoint")
	serveCmd.Flags().BoolVarP(&watchConfig, "watch", "w", true, "reload sensors when the config file changes")

	rootCmd.AddCommand(serveCmd)
}

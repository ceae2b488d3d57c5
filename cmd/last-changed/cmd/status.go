package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/persistent-last-changed/internal/service/status"
)

var (
	// serverAddress overrides listen_addr from the config.
	serverAddress string

	// statusCmd prints the running sensors.
	statusCmd = &cobra.Command{
		Use:   "status [sensor-id]",
		Short: "Print the sensors of a running server.",
		Long: `Queries the read API of a running server and prints the sensors as YAML.
With a sensor id (e.g. sensor.front_door_last_changed) only that sensor is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			options := &status.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
			}

			if len(args) > 0 {
				options.SensorID = args[0]
			}

			return status.Run(ctx, options, cmd.OutOrStdout())
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	statusCmd.Flags().StringVarP(&serverAddress, "server", "s", "", "server address, overrides listen_addr")

	rootCmd.AddCommand(statusCmd)
}

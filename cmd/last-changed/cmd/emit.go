package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/persistent-last-changed/internal/service/emit"
)

var (
	// emitOptions collects the event flags.
	emitOptions emit.Options
	// oldState and newState back the optional state flags.
	oldState, newState string

	// emitCmd publishes one state change.
	emitCmd = &cobra.Command{
		Use:   "emit <entity-id>",
		Short: "Publish a state change event.",
		Long: `Publishes one state_changed event for the entity to the NATS feed.
Omitting --new publishes an event without a new state, as sent when an entity
is removed.`,
		Example: "  last-changed emit binary_sensor.front_door --old off --new on",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			options := emitOptions
			options.ConfigPath = configPath
			options.EntityID = args[0]

			if cmd.Flags().Changed("old") {
				options.OldState = &oldState
			}

			if cmd.Flags().Changed("new") {
				options.NewState = &newState
			}

			return emit.Run(ctx, &options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	emitCmd.Flags().StringVar(&oldState, "old", "", "previous state")
	emitCmd.Flags().StringVar(&newState, "new", "", "new state")
	emitCmd.Flags().StringVar(&emitOptions.NATSURL, "nats-url", "", "NATS server URL, overrides the config")
	emitCmd.Flags().StringVar(&emitOptions.SubjectPrefix, "prefix", "", "subject prefix, overrides the config")

	rootCmd.AddCommand(emitCmd)
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/persistent-last-changed/internal/config"
	"github.com/oshokin/persistent-last-changed/internal/version"
)

var (
	// configPath to the configuration YAML file, shared by every subcommand.
	configPath string

	// rootCmd is the base command; the work is done by its subcommands.
	rootCmd = &cobra.Command{
		Use:   "last-changed",
		Short: "Track when home automation entities last meaningfully changed.",
		Long: `last-changed runs sensors that record the last time a watched entity
changed to a new meaningful value. Values survive restarts and can be flagged
as expired after a configured number of days without a change.

State changes arrive over NATS; snapshots are stored in a JSON file, SQLite
or a JetStream key-value bucket.`,
		SilenceUsage: true,
	}
)

// Execute runs the CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}

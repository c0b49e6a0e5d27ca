package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/jail-release/internal/config"
	"github.com/oshokin/jail-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides log_level from the configuration.
	logLevel string

	// rootCmd represents the base command managing jail releases.
	rootCmd = &cobra.Command{
		Use:   "jail-release",
		Short: "Fetch, verify and maintain base system releases for jails.",
		Long: `Manages the releases jails are created from.

Releases are downloaded from the distribution mirror, verified against the
published checksum manifest, extracted into their own ZFS dataset and
mirrored into a shared base dataset. Snapshots of a release root can be
taken and replaced by identifier.`,
		SilenceUsage: true,
	}
)

// Execute runs the jail-release CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(fetchCmd, showCmd, snapshotCmd, destroyCmd, baseCmd)
}

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cratebot/internal/config"
)

var (
	// settings holds flag, environment and default values. Flags are bound
	// onto it in init.
	settings = config.NewViper()

	// RootCmd is the root command for cratebot
	RootCmd = &cobra.Command{
		Use:   "cratebot",
		Short: "Announce crates.io crates on social media, one at a time",
		Long: `cratebot polls the crates.io catalog, remembers which crates it has
already announced, and posts about one unannounced crate chosen at random.

State lives in a single SQLite file (--db). Posting credentials are read
from CONSUMER_KEY, CONSUMER_SECRET, ACCESS_TOKEN_KEY and ACCESS_TOKEN_SECRET,
or from a dotenv-style secrets file (--secrets, default .env).

Examples:
  # Announce one crate and exit
  cratebot run

  # Announce one crate every hour in the foreground
  cratebot watch

  # Same, as a background daemon
  cratebot watch --daemon

  # Try it without posting
  cratebot run --dry-run

  # Show progress
  cratebot status
  cratebot list --unvisited`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "cratebot: announce crates.io crates on social media")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'cratebot run --dry-run' to try a cycle without posting.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'cratebot --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.String(config.KeyDB, "", "database path (default: db.sqlite)")
	flags.String(config.KeySecrets, "", "dotenv secrets file (default: .env if present)")
	flags.Bool(config.KeyDryRun, false, "log announcements instead of posting them")
	flags.String(config.KeyRegistryURL, "", "crates.io API base URL (default: https://crates.io)")
	flags.String(config.KeySocialURL, "", "social API base URL (default: https://api.twitter.com)")
	flags.Float64(config.KeyRate, config.DefaultRate, "registry requests per second")
	flags.String(config.KeyLogLevel, "", "log level: debug, info, warn, error (default: info)")

	for _, key := range []string{
		config.KeyDB,
		config.KeySecrets,
		config.KeyDryRun,
		config.KeyRegistryURL,
		config.KeySocialURL,
		config.KeyRate,
		config.KeyLogLevel,
	} {
		if err := settings.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", key, err))
		}
	}

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(listCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

package app

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cratebot/internal/config"
	"github.com/blackwell-systems/cratebot/internal/cycle"
	"github.com/blackwell-systems/cratebot/internal/daemon"
	"github.com/blackwell-systems/cratebot/internal/output"
)

const stopTimeout = 10 * time.Second

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Announce one crate every interval until stopped",
		Long: `Run announcement cycles in a loop: one immediately, then one every
--interval (default 1h).

A failed cycle is logged and the loop carries on at the next interval. When
every known crate has been announced the cycle is skipped until new crates
appear. Credentials are re-read whenever the secrets file changes.

Watch modes:
  • Foreground (default): run in the current terminal, Ctrl+C to stop
  • Daemon: run as a background process tracked by a PID file
  • Stop: stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  cratebot watch

  # Announce every 30 minutes as a background daemon
  cratebot watch --daemon --interval 30m

  # Stop running daemon
  cratebot watch --stop

  # Use custom PID and log files
  cratebot watch --daemon --pid-file /tmp/cratebot.pid --log-file /tmp/cratebot.log`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: cratebot.pid next to the database)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: cratebot.log next to the database)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().Duration(config.KeyInterval, config.DefaultInterval, "time between cycles")

	if err := settings.BindPFlag(config.KeyInterval, watchCmd.Flags().Lookup(config.KeyInterval)); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", config.KeyInterval, err))
	}

	_ = watchCmd.Flags().MarkHidden("daemon-child")
	watchCmd.MarkFlagsMutuallyExclusive("daemon", "stop")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if watchPIDFile == "" {
		watchPIDFile = defaultPIDFile(cfg)
	}
	if watchLogFile == "" {
		watchLogFile = defaultLogFile(cfg)
	}

	switch {
	case watchStop:
		return stopWatchDaemon(cmd)
	case watchDaemon:
		return startWatchDaemon(cmd, cfg)
	case watchDaemonChild:
		return daemon.Run(cmd.Context(), watchPIDFile, func(ctx context.Context) error {
			return runLoop(ctx, cfg)
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Announcing one crate every %s (press Ctrl+C to stop)...\n\n", cfg.Interval)
	if err := runLoop(ctx, cfg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Announcement loop stopped")
	return nil
}

// runLoop runs the scheduler until ctx is cancelled.
func runLoop(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	poster, closePoster, err := newPoster(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer closePoster()

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sched := cycle.NewScheduler(newRunner(cfg, db, poster, log), cfg.Interval, log)
	return sched.Run(ctx)
}

func stopWatchDaemon(cmd *cobra.Command) error {
	running, err := daemon.IsRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.SetWriter(cmd.OutOrStdout())
	spinner.Start()
	if err := daemon.Stop(watchPIDFile, stopTimeout); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")

	return nil
}

func startWatchDaemon(cmd *cobra.Command, cfg *config.Config) error {
	// Credentials are checked here so a bad setup fails in the terminal
	// rather than in the log file.
	if !cfg.DryRun {
		if _, err := config.LoadCredentials(cfg.SecretsFile, cfg.SecretsRequired); err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
	}

	spinner := output.NewSpinner("Starting daemon")
	spinner.SetWriter(cmd.OutOrStdout())
	spinner.Start()
	if err := daemon.Start(watchPIDFile, watchLogFile, daemonArgs(cfg)); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nAnnouncement daemon started\n")
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: cratebot watch --stop --pid-file %s\n", watchPIDFile)

	return nil
}

// daemonArgs passes the resolved configuration to the child explicitly so it
// does not depend on the parent's flags.
func daemonArgs(cfg *config.Config) []string {
	args := []string{
		"watch", "--daemon-child",
		"--pid-file", watchPIDFile,
		"--" + config.KeyDB, cfg.DBPath,
		"--" + config.KeyRegistryURL, cfg.RegistryURL,
		"--" + config.KeySocialURL, cfg.SocialURL,
		"--" + config.KeyInterval, cfg.Interval.String(),
		"--" + config.KeyRate, strconv.FormatFloat(cfg.Rate, 'g', -1, 64),
	}
	if cfg.SecretsRequired {
		args = append(args, "--"+config.KeySecrets, cfg.SecretsFile)
	}
	if cfg.DryRun {
		args = append(args, "--"+config.KeyDryRun)
	}
	if cfg.LogLevel != "" {
		args = append(args, "--"+config.KeyLogLevel, cfg.LogLevel)
	}
	return args
}

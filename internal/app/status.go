package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cratebot/internal/daemon"
	"github.com/blackwell-systems/cratebot/internal/output"
	"github.com/blackwell-systems/cratebot/internal/store"
)

var (
	statusPIDFile string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show announcement progress and daemon state",
		Long: `Show how many crates are known, how many have been announced, the most
recent announcement, and whether the watch daemon is running.`,
		Example: `  cratebot status
  cratebot status --db /var/lib/cratebot/db.sqlite`,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().StringVar(&statusPIDFile, "pid-file", "", "daemon PID file (default: cratebot.pid next to the database)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	db, err := openExistingStore(cfg.DBPath)
	if errors.Is(err, store.ErrNotInitialized) {
		fmt.Fprintf(out, "No database at %s.\n", cfg.DBPath)
		fmt.Fprintln(out, "Run 'cratebot run' to create it and announce the first crate.")
		return nil
	}
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}

	pidFile := statusPIDFile
	if pidFile == "" {
		pidFile = defaultPIDFile(cfg)
	}

	fmt.Fprint(out, output.RenderStats(cfg.DBPath, stats, daemonState(pidFile)))
	return nil
}

func daemonState(pidFile string) string {
	running, err := daemon.IsRunning(pidFile)
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	if !running {
		return "stopped (start with 'cratebot watch --daemon')"
	}
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return "running"
	}
	return fmt.Sprintf("running (PID %d)", pid)
}

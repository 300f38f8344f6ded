package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cratebot/internal/logger"
	"github.com/blackwell-systems/cratebot/internal/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one announcement cycle and exit",
	Long: `Run exactly one cycle: fetch the catalog from the resume page, add new
crates to the database, pick one unannounced crate at random, post about it
and mark it announced.

The command exits non-zero if any step fails, including when every known
crate has already been announced. Nothing is marked announced unless the
post succeeded.`,
	Example: `  # Post one announcement
  cratebot run

  # Log the announcement instead of posting it
  cratebot run --dry-run

  # Use a different database
  cratebot run --db /var/lib/cratebot/db.sqlite`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	poster, closePoster, err := newPoster(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer closePoster()

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := newRunner(cfg, db, poster, log)

	spinner := output.NewSpinner("Running announcement cycle")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()

	res, err := runner.RunOnce(ctx)
	spinner.Stop()
	if err != nil {
		log.Error("cycle failed", logger.Error(err))
		return fmt.Errorf("cycle failed: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderCycleResult(res))
	return nil
}

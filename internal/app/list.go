package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cratebot/internal/output"
	"github.com/blackwell-systems/cratebot/internal/store"
)

var (
	listVisited   bool
	listUnvisited bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List known crates and when they were announced",
		Example: `  cratebot list
  cratebot list --visited
  cratebot list --unvisited`,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listVisited, "visited", false, "only crates that have been announced")
	listCmd.Flags().BoolVar(&listUnvisited, "unvisited", false, "only crates not yet announced")
	listCmd.MarkFlagsMutuallyExclusive("visited", "unvisited")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openExistingStore(cfg.DBPath)
	if errors.Is(err, store.ErrNotInitialized) {
		return fmt.Errorf("no database at %s: %w", cfg.DBPath, err)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	filter := store.ListAll
	switch {
	case listVisited:
		filter = store.ListVisited
	case listUnvisited:
		filter = store.ListUnvisited
	}

	records, err := db.ListRecords(filter)
	if err != nil {
		return fmt.Errorf("failed to list crates: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderRecordTable(records))
	return nil
}

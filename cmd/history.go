package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mergestat/timediff"
	"github.com/spf13/cobra"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/store"
)

var historyCmdFlags struct {
	Limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs and rename record totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		st, err := store.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close() //nolint: errcheck

		counts, err := st.CountRenames(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to count rename records: %w", err)
		}

		fmt.Println("Rename Records:")
		fmt.Printf("  Done: %s\n", humanize.Comma(counts[store.RenameStatusDone]))
		fmt.Printf("  Failed: %s\n", humanize.Comma(counts[store.RenameStatusFailed]))
		fmt.Printf("  Skipped: %s\n", humanize.Comma(counts[store.RenameStatusSkipped]))

		runs, err := st.RecentRuns(cmd.Context(), historyCmdFlags.Limit)
		if err != nil {
			return fmt.Errorf("failed to get run history: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("\nNo runs recorded yet.")
			return nil
		}

		fmt.Println("\nRecent Runs:")
		for _, run := range runs {
			mode := ""
			if run.DryRun {
				mode = ", dry-run"
			}
			fmt.Printf("  %s (%s%s): %s, considered %d, renamed %d, verified %d, failed %d, skipped %d\n",
				run.ID, timediff.TimeDiff(run.StartedAt), mode, run.Status,
				run.Considered, run.Renamed, run.Verified, run.Failed, run.Skipped)
			if run.ErrorMessage != nil {
				fmt.Printf("    error: %s\n", *run.ErrorMessage)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyCmdFlags.Limit, "limit", 10, "Number of runs to show")

	rootCmd.AddCommand(historyCmd)
}

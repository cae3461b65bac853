package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all recorded rename outcomes",
	Long: `This command deletes every rename record from the store. The next run
re-evaluates the full catalog of each enabled service.`,
	Run: reset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func reset(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	defer st.Close() //nolint: errcheck

	count, err := st.ResetRenames(cmd.Context())
	if err != nil {
		log.Fatalf("failed to reset rename records: %v", err)
	}

	log.Info("Removed rename records", "count", count)
}

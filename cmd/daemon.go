package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/tidyarr/tidyarr/engine"
	"github.com/tidyarr/tidyarr/scheduler"
	"github.com/tidyarr/tidyarr/store"
)

var daemonCmdFlags struct {
	NoInitialRun bool
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the rename workflow on a cron schedule",
	Long: `Daemon mode runs the rename workflow on the cron schedule from the config
file. Only one run is active at a time; a tick that fires while a run is
still in flight is rescheduled.`,
	Run: daemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonCmdFlags.NoInitialRun, "no-initial-run", false, "Wait for the first cron tick instead of running immediately on startup")

	rootCmd.AddCommand(daemonCmd)
}

func daemon(_ *cobra.Command, _ []string) {
	cfg := loadConfig()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	defer st.Close() //nolint: errcheck

	eng, err := engine.New(cfg, st)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	sched, err := scheduler.New()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}

	err = sched.AddCronJob("rename", cfg.Schedule, func(ctx context.Context) error {
		_, err := eng.RunOnce(ctx)
		return err
	}, !daemonCmdFlags.NoInitialRun)
	if err != nil {
		log.Fatalf("failed to schedule rename job: %v", err)
	}

	sched.Start()

	// Wait for interrupt signal to gracefully shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Info("tidyarr daemon started", "schedule", cfg.Schedule)
	<-c
	log.Info("shutting down gracefully...")

	if err := sched.Stop(); err != nil {
		log.Errorf("failed to stop scheduler: %v", err)
	}
}

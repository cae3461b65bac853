package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/engine"
	"github.com/tidyarr/tidyarr/store"
	"github.com/tidyarr/tidyarr/version"
)

var rootCmdPersistentFlags struct {
	ConfigFile string
	LogLevel   string
	DryRun     bool
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootCmdPersistentFlags.ConfigFile, "config", "c", "", "Path to config file (default: search for config.yml in current dir, ~/.tidyarr, /etc/tidyarr)")
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error) - overrides config file setting")
	rootCmd.PersistentFlags().BoolVar(&rootCmdPersistentFlags.DryRun, "dry-run", false, "Log the renames a run would perform without sending any write request")
}

var rootCmd = &cobra.Command{
	Use:   "tidyarr",
	Short: "Tidyarr renames media folders to match the naming templates of Radarr and Sonarr",
	Long: `Tidyarr walks the movie and series catalogs of Radarr and Sonarr, computes the
folder name each service's own naming template would produce, and asks the
service to rename folders that drifted. Confirmed renames are remembered, so
later runs skip items that are already in shape.`,
	Example: `tidyarr --config config.yml
  tidyarr --dry-run
  tidyarr daemon --log-level debug`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	Run: root,
}

func root(cmd *cobra.Command, _ []string) {
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

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := eng.RunOnce(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

// loadConfig loads the config file and applies the persistent flag overrides.
func loadConfig() *config.Config {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	level := cfg.LogLevel
	if rootCmdPersistentFlags.LogLevel != "" {
		level = rootCmdPersistentFlags.LogLevel
	}
	setLogLevel(level)

	if rootCmdPersistentFlags.DryRun {
		cfg.DryRun = true
	}
	return cfg
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("unknown log level %s, defaulting to info", level)
		log.SetLevel(log.InfoLevel)
	}
}

func Execute() error {
	return fang.Execute(context.Background(), rootCmd, fang.WithVersion(version.Version))
}

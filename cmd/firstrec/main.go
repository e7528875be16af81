// Package main provides the firstrec CLI entry point.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/firstrecord/internal/app"
	"github.com/matsen/firstrecord/internal/config"
	"github.com/matsen/firstrecord/internal/logger"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "firstrec",
	Short: "Literature aggregation and first-record analysis for marine species",
	Long: `firstrec searches bibliographic, patent, and report sources for a marine
species and its synonyms, stores candidate PDFs, and asks an LLM whether each
document records the species from Korean waters.

All commands output JSON by default; use --human for readable output.
Secrets are read from the environment or a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./firstrecord.yml or $FIRSTRECORD_CONFIG)")
	rootCmd.Version = Version
}

// loadConfig resolves and loads the config file, exiting on failure.
func loadConfig() *config.Config {
	path, required := config.ResolvePath(configPath)
	cfg, err := config.Load(path, required)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// newLogger builds the stderr JSON logger for cfg.
func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(os.Stderr, cfg.LogLevel)
}

// mustApp loads configuration and wires the application, exiting on
// failure. Callers must Close the returned App.
func mustApp(ctx context.Context) *app.App {
	cfg := loadConfig()
	a, err := app.New(ctx, cfg, newLogger(cfg))
	if err != nil {
		exitWithError(exitCodeFor(err), "initializing: %v", err)
	}
	return a
}

/*
main.go - Application entry point

PURPOSE:
  Command line for the HOA ledger. Loads configuration, builds the engine
  graph and runs one of the subcommands.

COMMANDS:
  serve     HTTP API with the periodic refresh scheduler
  preview   Offline payment distribution preview for one unit

GLOBAL FLAGS:
  --config  Path to hoa.toml (default: search ., ./config, /etc/hoa-ledger)
  --db      SQLite database path; overrides database.path
            Use "" for the in-memory store, ":memory:" for in-memory sqlite

ENVIRONMENT:
  Every config key can be set with the HOA_ prefix, e.g. HOA_APP_PORT=3000,
  HOA_DATABASE_PATH=./data/hoa.db, HOA_REDIS_ENABLED=true.

EXAMPLES:
  # Run with file database
  ./server serve --db="./data/hoa.db"

  # What would a 1500.00 payment do for unit A-101?
  ./server preview --unit A-101 --amount 1500.00

SEE ALSO:
  - api/server.go: Router configuration
  - factory/factory.go: Engine graph
  - config/config.go: Configuration keys and defaults
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/hoa-ledger/config"
	"github.com/warp/hoa-ledger/logger"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "HOA payment distribution and ledger engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to hoa.toml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

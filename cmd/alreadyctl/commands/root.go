// Package commands implements the alreadyctl subcommands.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/di/providers"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

var (
	// Global flags
	envFile  string
	dbDriver string
	dbDSN    string
	dbPath   string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "alreadyctl",
	Short: "Operate an AlreadyDone server's datastore",
	Long: `alreadyctl runs maintenance tasks against the same configuration the
server reads: schema migrations, the desire catalog and the reminder sweep.

Configuration comes from the environment and the .env file. The database
flags override DATABASE_DRIVER, DATABASE_URL and DATABASE_PATH.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "Database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "Postgres connection string")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "SQLite database file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// loadConfig builds the server config with the CLI's overrides applied.
func loadConfig() (*config.Config, error) {
	args := []string{"-env-file", envFile}
	if dbDriver != "" {
		args = append(args, "-db-driver", dbDriver)
	}
	if dbDSN != "" {
		args = append(args, "-db-dsn", dbDSN)
	}
	if dbPath != "" {
		args = append(args, "-db-path", dbPath)
	}
	if verbose {
		args = append(args, "-log-level", "debug")
	}
	return config.Load(args)
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Writer:      os.Stderr,
		Format:      cfg.Logger.Format,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})
}

// openStore opens the configured datastore without applying migrations.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	dbCfg := cfg.Database
	dbCfg.Migrate = false
	return providers.OpenStore(ctx, dbCfg, log.Logger)
}

// Package main runs the ProjectFlow workflow service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"projectflow/backend/internal/config"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
)

var (
	configFile string
	version    = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "projectflow",
		Short: "Workflow engine and business rule service",
		Long: `projectflow serves the workflow definition registry, workflow instance
state machine and business rule evaluator over a REST API and MCP.

Running without a subcommand is the same as "projectflow serve".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default ./config.yaml or ./config/config.yaml)")

	serve := newServeCmd()
	root.AddCommand(serve)
	root.AddCommand(newMigrateCmd())
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

// bootstrap loads the configuration and builds the logger.
func bootstrap() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore returns the configured record store. The returned close
// function is never nil.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrate bool) (repository.Repository, func(), error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store := repository.NewPostgresStore(pool, logger.Named("postgres"))
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating schema: %w", err)
		}
	}
	return store, pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection", "host", cfg.DB.Host, "db", cfg.DB.Name)

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolConfig.MaxConns = cfg.DB.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected", "host", cfg.DB.Host, "db", cfg.DB.Name)
	return pool, nil
}

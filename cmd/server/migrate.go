package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Long: `Create the users, projects, workflows, workflow_instances and
business_rules tables and their indexes. Safe to run repeatedly.

Examples:
  projectflow migrate --config=/etc/projectflow/config.yaml`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DB.Driver != "postgres" {
		return errors.New("migrate requires db.driver=postgres")
	}

	_, closeStore, err := openStore(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("Schema applied", "db", cfg.DB.Name)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	infraBQ "github.com/dvloznov/customer-rfm/internal/infra/bigquery"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags
var (
	migrateDir    string
	migrateDryRun bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending BigQuery schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "migrations directory (overrides bigquery.migrations_dir)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "list pending migrations without applying them")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.BigQuery.Project == "" {
		return fmt.Errorf("migrate: bigquery project is required")
	}

	dir := cfg.BigQuery.MigrationsDir
	if migrateDir != "" {
		dir = migrateDir
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	ds := infraBQ.Dataset{ProjectID: cfg.BigQuery.Project, DatasetID: cfg.BigQuery.Dataset}
	repo, err := infraBQ.NewRepository(ctx, ds)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer repo.Close()

	appliedBy := os.Getenv("USER")
	if appliedBy == "" {
		appliedBy = "rfm"
	}

	n, err := infraBQ.NewMigrator(repo.Client(), ds, appliedBy).Apply(ctx, dir, migrateDryRun)
	if err != nil {
		return err
	}

	log.Info().Int("applied", n).Bool("dry_run", migrateDryRun).Msg("Migrations complete")
	return nil
}

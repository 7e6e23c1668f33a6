package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/rootapp/internal/config"
	"github.com/keyxmakerx/rootapp/internal/database"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(cfg *config.Config, db *sql.DB) error {
			return database.RunMigrations(db, cfg.Database.MigrationsPath)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(cfg *config.Config, db *sql.DB) error {
			return database.RollbackMigrations(db, cfg.Database.MigrationsPath, rollbackSteps)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(cfg *config.Config, db *sql.DB) error {
			v, dirty, err := database.MigrationVersion(db, cfg.Database.MigrationsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVarP(&rollbackSteps, "steps", "n", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// withDB loads config, opens MariaDB, and runs fn against it.
func withDB(cmd *cobra.Command, fn func(*config.Config, *sql.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to MariaDB: %w", err)
	}
	defer db.Close()

	return fn(cfg, db)
}

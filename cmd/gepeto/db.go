package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/gepeto/internal/config"
	"github.com/zulandar/gepeto/internal/db"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the gepeto tables",
		Long:  "Connects to database_url and migrates the conversation and recipe tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := openDB(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}
}

// openDB connects to the configured database and migrates every table.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time, and each :memory: connection is
	// its own database.
	if dialect := gormDB.Dialector.Name(); dialect == "sqlite" {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/coursereel/internal/config"
	"github.com/zulandar/coursereel/internal/db"
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
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and seed the catalog",
		Long:  "Migrates all tables and upserts the catalog from the config file. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	data := cfg.ToCatalog()
	if err := db.SeedCatalog(gormDB, data); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d categories, %d departments, %d templates, %d job trainings\n",
		len(data.Categories()), len(data.Departments()), len(data.Templates()), len(data.JobTrainings()))
	return nil
}

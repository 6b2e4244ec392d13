package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/bruno/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the Bruno tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd)
		},
	}
}

func runDBInit(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-create the Bruno tables",
		Long:  "Drops every Bruno table, deleting all users, conversations, timers and notes, then migrates again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm dropping all data")
	return cmd
}

func runDBReset(cmd *cobra.Command, yes bool) error {
	if !yes {
		return fmt.Errorf("db reset deletes all data; re-run with --yes to confirm")
	}
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	if err := db.DropAll(gormDB); err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reset %d tables (%s)\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}

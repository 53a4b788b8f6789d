package main

import (
	"fmt"

	"github.com/bissquit/clerk-queue/internal/pkg/postgres"
	"github.com/bissquit/clerk-queue/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(fn func(*postgres.Migrator) error) error {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		m, err := postgres.NewMigrator(migrations.FS, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return fn(m)
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withMigrator(func(m *postgres.Migrator) error {
				return m.Up()
			})
		},
	})

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *postgres.Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(downCmd)

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *postgres.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
					return nil
				}
				state := "clean"
				if dirty {
					state = "dirty"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Version %d (%s)\n", version, state)
				return nil
			})
		},
	})

	return migrateCmd
}

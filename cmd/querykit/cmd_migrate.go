package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/querykit/internal/db"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			newLogger()
			m, err := db.NewMigrator(cfg.Database.URL())
			if err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			defer m.Close()
			return m.Down(steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				newLogger()
				return runMigrations()
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			RunE: func(cmd *cobra.Command, args []string) error {
				newLogger()
				m, err := db.NewMigrator(cfg.Database.URL())
				if err != nil {
					return fmt.Errorf("migrate version: %w", err)
				}
				defer m.Close()
				version, dirty, err := m.Version()
				if err != nil {
					return fmt.Errorf("migrate version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func runMigrations() error {
	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

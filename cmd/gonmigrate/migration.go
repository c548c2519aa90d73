package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

func newMigrationCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migration",
		Short: "Create, list and remove migration scripts",
	}

	cmd.AddCommand(newMigrationInitCommand(a))
	cmd.AddCommand(newMigrationAddCommand(a))
	cmd.AddCommand(newMigrationListCommand(a))
	cmd.AddCommand(newMigrationCheckCommand(a))
	cmd.AddCommand(newMigrationRemoveCommand(a))
	return cmd
}

func newMigrationInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [name]",
		Short: "Create the initial migration for the whole desired schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			a.step("🔨 Creating initial migration...")

			s, err := a.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.migrator.CreateInitialMigration(cmd.Context(), name)
			if err != nil {
				return err
			}
			a.success("Migration %s created", rec.ID)
			return nil
		},
	}
}

func newMigrationAddCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a migration from the changes since the last one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.step("🔨 Creating migration %s...", args[0])

			s, err := a.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.migrator.CreateMigration(cmd.Context(), args[0])
			if errors.Is(err, models.ErrNoChanges) {
				a.warn("No schema changes detected, nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			a.success("Migration %s created (%d up, %d down statements)", rec.ID, len(rec.Up), len(rec.Down))
			return nil
		},
	}
}

func newMigrationListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(false)
			if err != nil {
				return err
			}
			defer s.Close()

			infos, err := s.migrator.ListMigrations(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				a.warn("No migrations found in %s", a.cfg.MigrationsDir)
				return nil
			}
			return printMigrations(a.out, infos)
		},
	}
}

func newMigrationCheckCommand(a *app) *cobra.Command {
	var failOnChanges bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether the desired schema needs a new migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			needed, err := s.migrator.CheckMigrationNeeded(cmd.Context())
			if err != nil {
				return err
			}
			if !needed {
				a.success("Schema is up to date")
				return nil
			}
			a.warn("Schema changes pending, run `gonmigrate migration add <name>`")
			if failOnChanges {
				return errChangesPending
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnChanges, "exit-code", false, "exit with status 1 when a migration is needed")
	return cmd
}

func newMigrationRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the newest migration script if it has not been applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.step("🗑️  Removing last migration...")

			s, err := a.open(false)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.migrator.RemoveLastMigration(cmd.Context())
			if err != nil {
				return err
			}
			a.success("Migration %s removed", id)
			return nil
		},
	}
}

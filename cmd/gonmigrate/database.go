package main

import (
	"github.com/spf13/cobra"
)

func newDatabaseCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Apply or revert migrations",
	}

	cmd.AddCommand(newDatabaseUpdateCommand(a))
	cmd.AddCommand(newDatabaseRollbackCommand(a))
	return cmd
}

func newDatabaseUpdateCommand(a *app) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.step("🚀 Updating database...")

			s, err := a.open(false)
			if err != nil {
				return err
			}
			defer s.Close()

			applied, err := s.migrator.Up(cmd.Context(), target)
			for _, id := range applied {
				a.step("  ↑ %s", id)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				a.success("Database is already up to date")
				return nil
			}
			a.success("Applied %d migration(s)", len(applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "apply migrations up to and including this id")
	return cmd
}

func newDatabaseRollbackCommand(a *app) *cobra.Command {
	var (
		target string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the last migration, every migration after --target, or --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.step("↩️  Rolling back...")

			s, err := a.open(false)
			if err != nil {
				return err
			}
			defer s.Close()

			var reverted []string
			if all {
				reverted, err = s.migrator.DownAll(cmd.Context())
			} else {
				reverted, err = s.migrator.Down(cmd.Context(), target)
			}
			for _, id := range reverted {
				a.step("  ↓ %s", id)
			}
			if err != nil {
				return err
			}
			if len(reverted) == 0 {
				a.warn("Nothing to roll back")
				return nil
			}
			a.success("Rolled back %d migration(s)", len(reverted))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "revert every migration applied after this id")
	cmd.Flags().BoolVar(&all, "all", false, "revert every applied migration")
	cmd.MarkFlagsMutuallyExclusive("target", "all")
	return cmd
}

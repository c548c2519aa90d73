package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shepherrrd/gonmigrate/internal/config"
	"github.com/shepherrrd/gonmigrate/internal/entities"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

func newSchemaCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the desired and the live schema",
	}

	cmd.AddCommand(newSchemaDiffCommand(a))
	cmd.AddCommand(newSchemaPullCommand(a))
	return cmd
}

func newSchemaDiffCommand(a *app) *cobra.Command {
	var withDown bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Print the statements the next migration would contain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.migrator.Preview(cmd.Context(), "preview")
			if errors.Is(err, models.ErrNoChanges) {
				a.success("Schema is up to date")
				return nil
			}
			if err != nil {
				return err
			}
			printStatements(a.out, "up", rec.Up)
			if withDown {
				printStatements(a.out, "down", rec.Down)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDown, "down", false, "print the down statements too")
	return cmd
}

func newSchemaPullCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Introspect the database and print it as a YAML schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(false)
			if err != nil {
				return err
			}
			defer s.Close()

			live, err := s.migrator.Introspect(cmd.Context())
			if err != nil {
				return err
			}
			data, err := entities.MarshalSchema(live)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = a.out.Write(data)
				return err
			}
			if err := afero.WriteFile(config.AppFs, output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			a.success("Schema with %d table(s) written to %s", len(live.Tables), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

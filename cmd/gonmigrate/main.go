package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errChangesPending) {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("❌ Error:"), err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := newApp()

	rootCmd := &cobra.Command{
		Use:           "gonmigrate",
		Short:         "Schema-diff driven database migrations",
		Long:          "gonmigrate compares your entities or schema file with the last recorded schema,\nwrites reversible migration scripts and applies them to the database.",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	a.bindFlags(rootCmd)

	rootCmd.AddCommand(newMigrationCommand(a))
	rootCmd.AddCommand(newDatabaseCommand(a))
	rootCmd.AddCommand(newSchemaCommand(a))
	return rootCmd
}

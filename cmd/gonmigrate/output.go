package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/shepherrrd/gonmigrate/internal/migrations"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

var errChangesPending = errors.New("schema changes pending")

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
)

func (a *app) step(format string, args ...any) {
	infoColor.Fprintf(a.out, format+"\n", args...)
}

func (a *app) success(format string, args ...any) {
	successColor.Fprintf(a.out, "✅ "+format+"\n", args...)
}

func (a *app) warn(format string, args ...any) {
	warnColor.Fprintf(a.out, "⚠️  "+format+"\n", args...)
}

func printStatements(w io.Writer, title string, stmts []string) {
	fmt.Fprintf(w, "-- %s\n", title)
	if len(stmts) == 0 {
		dimColor.Fprintln(w, "-- (nothing)")
		return
	}
	for _, stmt := range stmts {
		fmt.Fprintf(w, "%s;\n", stmt)
	}
}

func statusText(status models.MigrationStatus) string {
	switch status {
	case models.StatusApplied:
		return color.GreenString(string(status))
	case models.StatusRolledBack:
		return color.YellowString(string(status))
	default:
		return color.CyanString(string(status))
	}
}

func printMigrations(w io.Writer, infos []migrations.MigrationInfo) error {
	data := pterm.TableData{{"ID", "STATUS", "APPLIED AT"}}
	for _, info := range infos {
		appliedAt := "-"
		if info.AppliedAt != nil {
			appliedAt = info.AppliedAt.Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{info.ID, statusText(info.Status), appliedAt})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render migration table: %w", err)
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

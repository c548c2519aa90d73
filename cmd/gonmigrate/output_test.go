package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate/internal/migrations"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

func TestPrintMigrations(t *testing.T) {
	color.NoColor = true
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMigrations(&buf, []migrations.MigrationInfo{
		{ID: "20261019120000_initial", Status: models.StatusApplied, AppliedAt: &at},
		{ID: "20261019130000_add_posts", Status: models.StatusPending},
	}))

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "APPLIED AT")
	assert.NotContains(t, out, "\x1b[")
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "20261019120000_initial"):
			assert.Contains(t, line, "applied")
			assert.Contains(t, line, "2026-10-19 12:00:00")
		case strings.Contains(line, "20261019130000_add_posts"):
			assert.Contains(t, line, "pending")
		}
	}
}

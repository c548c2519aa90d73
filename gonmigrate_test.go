package gonmigrate_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate"
)

type Account struct {
	ID    uint
	Email string `gonmigrate:"size:255;unique"`
}

func TestFacade_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	db, driver, err := gonmigrate.Open("sqlite3", filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", driver.Name())

	desired, err := gonmigrate.SchemaFromEntities(&Account{})
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts"}, desired.TableNames())

	m, err := gonmigrate.NewMigrator(db, driver, desired, gonmigrate.Options{
		MigrationsDir: filepath.Join(dir, "migrations"),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx := context.Background()
	rec, err := m.CreateMigration(ctx, "CreateAccounts")
	require.NoError(t, err)
	assert.Contains(t, rec.ID, "_create_accounts")

	applied, err := m.Up(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, applied)

	_, err = m.CreateMigration(ctx, "again")
	assert.ErrorIs(t, err, gonmigrate.ErrNoChanges)
}

func TestFacade_OpenUnknownDriver(t *testing.T) {
	_, _, err := gonmigrate.Open("oracle", "whatever")
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersSchema = `tables:
  - name: users
    columns:
      - {name: id, type: integer, auto_increment: true}
      - {name: email, type: string, size: 255}
    constraints:
      - {kind: primary_key, columns: [id]}
      - {kind: unique, columns: [email]}
`

const usersWithProfilesSchema = usersSchema + `  - name: profiles
    columns:
      - {name: id, type: integer}
      - {name: user_id, type: integer}
      - {name: bio, type: string, nullable: true}
    constraints:
      - {kind: primary_key, columns: [id]}
      - {kind: foreign_key, columns: [user_id], ref_table: users, ref_columns: [id], on_delete: cascade}
`

type cli struct {
	t        *testing.T
	dir      string
	schema   string
	logLevel string
	logs     string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", dir)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	for _, key := range []string{"DATABASE_URL", "GONMIGRATE_DATABASE_URL", "GONMIGRATE_DRIVER"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return &cli{t: t, dir: dir, schema: filepath.Join(dir, "schema.yaml"), logLevel: "error"}
}

func (c *cli) writeSchema(content string) {
	c.t.Helper()
	require.NoError(c.t, os.WriteFile(c.schema, []byte(content), 0o644))
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out, logs bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	args = append(args,
		"--no-color",
		"--log-level", c.logLevel,
		"--database-url", filepath.Join(c.dir, "app.db"),
		"--migrations-dir", filepath.Join(c.dir, "migrations"),
	)
	if c.schema != "" {
		args = append(args, "--schema", c.schema)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	c.logs = logs.String()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestCLI_MigrationLifecycle(t *testing.T) {
	c := newCLI(t)
	c.writeSchema(usersSchema)

	out := c.mustRun("schema", "diff", "--down")
	assert.Contains(t, out, "-- up")
	assert.Contains(t, out, `CREATE TABLE "users"`)
	assert.Contains(t, out, `DROP TABLE "users"`)

	out = c.mustRun("migration", "add", "create_users")
	assert.Contains(t, out, "_create_users created")

	out = c.mustRun("migration", "add", "again")
	assert.Contains(t, out, "No schema changes detected")

	out = c.mustRun("migration", "list")
	assert.Contains(t, out, "pending")

	out = c.mustRun("database", "update")
	assert.Contains(t, out, "Applied 1 migration(s)")

	out = c.mustRun("database", "update")
	assert.Contains(t, out, "already up to date")

	out = c.mustRun("migration", "list")
	assert.Contains(t, out, "applied")
	assert.NotContains(t, out, "pending")

	out = c.mustRun("schema", "pull")
	assert.Contains(t, out, "name: users")
	assert.NotContains(t, out, "gonmigrate_migrations")

	c.writeSchema(usersWithProfilesSchema)
	_, err := c.run("migration", "check", "--exit-code")
	assert.ErrorIs(t, err, errChangesPending)

	c.mustRun("migration", "add", "add_profiles")
	out = c.mustRun("migration", "check", "--exit-code")
	assert.Contains(t, out, "Schema is up to date")

	out = c.mustRun("migration", "remove")
	assert.Contains(t, out, "_add_profiles removed")
	_, err = c.run("migration", "check", "--exit-code")
	assert.ErrorIs(t, err, errChangesPending)

	c.mustRun("migration", "add", "add_profiles")
	out = c.mustRun("database", "update")
	assert.Contains(t, out, "Applied 1 migration(s)")

	out = c.mustRun("database", "rollback")
	assert.Contains(t, out, "Rolled back 1 migration(s)")

	out = c.mustRun("database", "rollback", "--all")
	assert.Contains(t, out, "Rolled back 1 migration(s)")

	out = c.mustRun("database", "rollback")
	assert.Contains(t, out, "Nothing to roll back")

	out = c.mustRun("migration", "list")
	assert.Contains(t, out, "rolled_back")
	assert.NotContains(t, out, " applied ")
}

func TestCLI_SQLLogFollowsLogFormat(t *testing.T) {
	c := newCLI(t)
	c.writeSchema(usersSchema)
	c.mustRun("migration", "add", "create_users")

	c.logLevel = "info"
	c.mustRun("database", "update", "--sql-log-level", "info", "--log-format", "json")
	assert.Contains(t, c.logs, `"msg":"applying migration"`)
	assert.Contains(t, c.logs, `CREATE TABLE \"users\"`)
}

func TestCLI_InitAndPullToFile(t *testing.T) {
	c := newCLI(t)
	c.writeSchema(usersSchema)

	out := c.mustRun("migration", "init")
	assert.Contains(t, out, "_initial created")

	_, err := c.run("migration", "init")
	assert.Error(t, err)

	c.mustRun("database", "update")
	target := filepath.Join(c.dir, "pulled.yaml")
	out = c.mustRun("schema", "pull", "-o", target)
	assert.Contains(t, out, "1 table(s)")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: email")
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("migration", "add")
	assert.Error(t, err)

	_, err = c.run("database", "rollback", "--all", "--target", "x")
	assert.Error(t, err)

	c.schema = ""
	_, err = c.run("migration", "add", "x")
	assert.ErrorContains(t, err, "no desired schema")

	_, err = c.run("database", "update", "--driver", "oracle")
	assert.ErrorContains(t, err, "unsupported driver")
}

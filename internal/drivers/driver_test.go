package drivers

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

func strPtr(s string) *string { return &s }

func TestNewDriverAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"postgres":   "postgres",
		"postgresql": "postgres",
		"pg":         "postgres",
		"mysql":      "mysql",
		"mariadb":    "mysql",
		"sqlite3":    "sqlite",
		" SQLite ":   "sqlite",
	} {
		d, err := NewDriver(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, want, d.Name(), alias)
	}

	_, err := NewDriver("oracle")
	assert.Error(t, err)
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		driver DatabaseDriver
		raw    string
		want   TypeInfo
	}{
		{NewSQLiteDriver(), "VARCHAR(255)", TypeInfo{Type: models.TypeString, Size: 255}},
		{NewSQLiteDriver(), "TEXT", TypeInfo{Type: models.TypeString}},
		{NewSQLiteDriver(), "INTEGER", TypeInfo{Type: models.TypeInteger}},
		{NewSQLiteDriver(), "DECIMAL(10,2)", TypeInfo{Type: models.TypeFloat, Precision: 10, Scale: 2}},
		{NewSQLiteDriver(), "", TypeInfo{Type: models.TypeBlob}},
		{NewSQLiteDriver(), "UNSIGNED BIG INT", TypeInfo{Type: models.TypeInteger}},
		{NewPostgreSQLDriver(), "character varying(64)", TypeInfo{Type: models.TypeString, Size: 64}},
		{NewPostgreSQLDriver(), "timestamp(6) without time zone", TypeInfo{Type: models.TypeDateTime}},
		{NewPostgreSQLDriver(), "uuid", TypeInfo{Type: models.TypeString, Size: 36}},
		{NewPostgreSQLDriver(), "bigint", TypeInfo{Type: models.TypeInteger, Size: 8}},
		{NewMySQLDriver(), "tinyint(1)", TypeInfo{Type: models.TypeBoolean}},
		{NewMySQLDriver(), "int(11)", TypeInfo{Type: models.TypeInteger}},
		{NewMySQLDriver(), "bigint unsigned", TypeInfo{Type: models.TypeInteger, Size: 8}},
		{NewMySQLDriver(), "longtext", TypeInfo{Type: models.TypeString}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.driver.NormalizeType(tt.raw), "%s %q", tt.driver.Name(), tt.raw)
	}
}

func TestPostgresNormalizeDefault(t *testing.T) {
	p := NewPostgreSQLDriver()

	d, identity := p.normalizeDefault("'draft'::character varying")
	require.NotNil(t, d)
	assert.Equal(t, "'draft'", *d)
	assert.False(t, identity)

	d, identity = p.normalizeDefault("nextval('users_id_seq'::regclass)")
	assert.Nil(t, d)
	assert.True(t, identity)
}

func usersTable() *models.Table {
	return &models.Table{
		Name: "users",
		Columns: []*models.Column{
			{Name: "id", Type: models.TypeInteger, AutoIncrement: true},
			{Name: "email", Type: models.TypeString, Size: 255},
			{Name: "property", Type: models.TypeInteger, Nullable: true},
		},
		Constraints: []*models.Constraint{
			{Kind: models.PrimaryKeyConstraint, Columns: []string{"id"}},
			{Kind: models.UniqueConstraint, Columns: []string{"email"}},
		},
	}
}

func TestSQLiteRenderAddTable(t *testing.T) {
	d := NewSQLiteDriver()
	table := usersTable()

	stmts, err := d.RenderOperation(models.Operation{Kind: models.AddTable, Table: "users", TableDef: table}, nil, table)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `CREATE TABLE "users"`)
	assert.Contains(t, stmts[0], `"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, stmts[0], `"email" VARCHAR(255) NOT NULL`)
	assert.NotContains(t, stmts[0], "CONSTRAINT \"pk_users\"")
	assert.Equal(t, `CREATE UNIQUE INDEX "uq_users_email" ON "users" ("email")`, stmts[1])
}

func TestSQLiteRenderAlterColumnRebuilds(t *testing.T) {
	d := NewSQLiteDriver()
	before := usersTable()
	after := before.Clone()
	after.Column("property").Type = models.TypeString

	op := models.Operation{Kind: models.AlterColumn, Table: "users", Column: after.Column("property"), From: before.Column("property")}
	stmts, err := d.RenderOperation(op, before, after)
	require.NoError(t, err)

	require.Len(t, stmts, 5)
	assert.Contains(t, stmts[0], `CREATE TABLE "_gonmigrate_new_users"`)
	assert.Equal(t, `INSERT INTO "_gonmigrate_new_users" ("id", "email", "property") SELECT "id", "email", CAST("property" AS TEXT) FROM "users"`, stmts[1])
	assert.Equal(t, `DROP TABLE "users"`, stmts[2])
	assert.Equal(t, `ALTER TABLE "_gonmigrate_new_users" RENAME TO "users"`, stmts[3])
	assert.Equal(t, `CREATE UNIQUE INDEX "uq_users_email" ON "users" ("email")`, stmts[4])
}

func TestSQLiteRenderAddNotNullColumnWithoutDefaultRebuilds(t *testing.T) {
	d := NewSQLiteDriver()
	before := usersTable()
	after := before.Clone()
	col := &models.Column{Name: "age", Type: models.TypeInteger}
	after.Columns = append(after.Columns, col)

	stmts, err := d.RenderOperation(models.Operation{Kind: models.AddColumn, Table: "users", Column: col}, before, after)
	require.NoError(t, err)
	assert.Contains(t, stmts[0], "_gonmigrate_new_users")

	col.Default = strPtr("0")
	stmts, err = d.RenderOperation(models.Operation{Kind: models.AddColumn, Table: "users", Column: col}, before, after)
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "users" ADD COLUMN "age" INTEGER NOT NULL DEFAULT 0`}, stmts)
}

func TestPostgresRenderAlterColumn(t *testing.T) {
	d := NewPostgreSQLDriver()
	from := &models.Column{Name: "property", Type: models.TypeInteger, Nullable: true}
	to := &models.Column{Name: "property", Type: models.TypeString, Nullable: false, Default: strPtr("''")}

	stmts, err := d.RenderOperation(models.Operation{Kind: models.AlterColumn, Table: "users", Column: to, From: from}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "users" ALTER COLUMN "property" TYPE TEXT USING "property"::TEXT, ALTER COLUMN "property" SET NOT NULL, ALTER COLUMN "property" SET DEFAULT ''`,
	}, stmts)
}

func TestMySQLRenderConstraints(t *testing.T) {
	d := NewMySQLDriver()
	fk := &models.Constraint{
		Kind:       models.ForeignKeyConstraint,
		Columns:    []string{"user_id"},
		RefTable:   "users",
		RefColumns: []string{"id"},
		OnDelete:   models.Cascade,
	}

	stmts, err := d.RenderOperation(models.Operation{Kind: models.AddConstraint, Table: "posts", Constraint: fk}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE `posts` ADD CONSTRAINT `fk_posts_user_id_users` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`) ON DELETE CASCADE ON UPDATE NO ACTION"}, stmts)

	stmts, err = d.RenderOperation(models.Operation{Kind: models.DropConstraint, Table: "posts", Constraint: fk}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE `posts` DROP FOREIGN KEY `fk_posts_user_id_users`"}, stmts)
}

func TestSQLiteDescribeTable(t *testing.T) {
	d := NewSQLiteDriver()
	db, err := d.Connect(filepath.Join(t.TempDir(), "describe.db"))
	require.NoError(t, err)

	ctx := context.Background()
	users := usersTable()
	posts := &models.Table{
		Name: "posts",
		Columns: []*models.Column{
			{Name: "id", Type: models.TypeInteger, AutoIncrement: true},
			{Name: "user_id", Type: models.TypeInteger},
			{Name: "title", Type: models.TypeString, Default: strPtr("'untitled'")},
		},
		Constraints: []*models.Constraint{
			{Kind: models.PrimaryKeyConstraint, Columns: []string{"id"}},
			{Kind: models.ForeignKeyConstraint, Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}, OnDelete: models.Cascade},
			{Kind: models.IndexConstraint, Columns: []string{"title"}},
		},
	}
	for _, table := range []*models.Table{users, posts} {
		stmts, err := d.RenderOperation(models.Operation{Kind: models.AddTable, Table: table.Name, TableDef: table}, nil, table)
		require.NoError(t, err)
		for _, stmt := range stmts {
			require.NoError(t, db.Exec(stmt).Error, stmt)
		}
	}

	names, err := d.ListTables(ctx, db)
	require.NoError(t, err)
	assert.Contains(t, names, "users")
	assert.Contains(t, names, "posts")

	got, err := d.DescribeTable(ctx, db, "posts")
	require.NoError(t, err)

	require.Len(t, got.Columns, 3)
	assert.True(t, got.Column("id").AutoIncrement)
	assert.False(t, got.Column("id").Nullable)
	require.NotNil(t, got.Column("title").Default)
	assert.Equal(t, "'untitled'", *got.Column("title").Default)

	for _, con := range posts.Constraints {
		assert.NotNil(t, got.Constraint(con), con.Key())
	}
	assert.Len(t, got.Constraints, len(posts.Constraints))
}

func TestSQLiteConnectWithLoggerWritesStatements(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	db, err := NewSQLiteDriver().ConnectWithLogger(filepath.Join(t.TempDir(), "app.db"), "info")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	require.NoError(t, db.Exec(`CREATE TABLE logged (id INTEGER)`).Error)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
	assert.Contains(t, buf.String(), "CREATE TABLE logged")

	buf.Reset()
	quiet, err := NewSQLiteDriver().ConnectWithLogger(filepath.Join(t.TempDir(), "quiet.db"), "silent")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := quiet.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, quiet.Exec(`CREATE TABLE quiet (id INTEGER)`).Error)
	assert.Empty(t, buf.String())
}

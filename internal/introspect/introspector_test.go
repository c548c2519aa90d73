package introspect

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/drivers"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

func openSQLite(t *testing.T) (*gorm.DB, drivers.DatabaseDriver) {
	t.Helper()
	driver := drivers.NewSQLiteDriver()
	db, err := driver.Connect(filepath.Join(t.TempDir(), "introspect.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db, driver
}

func exec(t *testing.T, db *gorm.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error, stmt)
	}
}

func TestIntrospect_ReadsTablesInNameOrder(t *testing.T) {
	db, driver := openSQLite(t)
	exec(t, db,
		`CREATE TABLE "users" ("id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, "email" VARCHAR(255) NOT NULL, "bio" TEXT)`,
		`CREATE UNIQUE INDEX "uq_users_email" ON "users" ("email")`,
		`CREATE TABLE "posts" ("id" INTEGER NOT NULL, "user_id" INTEGER NOT NULL, "score" REAL DEFAULT 0,
			CONSTRAINT "pk_posts" PRIMARY KEY ("id"),
			CONSTRAINT "fk_posts_user_id_users" FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE CASCADE ON UPDATE NO ACTION)`,
	)

	schema, err := New(db, driver).Introspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, schema.TableNames())

	users := schema.Table("users")
	assert.Equal(t, models.TypeString, users.Column("email").Type)
	assert.Equal(t, 255, users.Column("email").Size)
	assert.False(t, users.Column("email").Nullable)
	assert.True(t, users.Column("bio").Nullable)
	assert.True(t, users.Column("id").AutoIncrement)
	assert.NotNil(t, users.Constraint(&models.Constraint{Kind: models.UniqueConstraint, Columns: []string{"email"}}))

	posts := schema.Table("posts")
	require.NotNil(t, posts.PrimaryKey())
	assert.Equal(t, []string{"id"}, posts.PrimaryKey().Columns)
	assert.False(t, posts.Column("id").AutoIncrement)
	assert.Equal(t, models.TypeFloat, posts.Column("score").Type)
	require.NotNil(t, posts.Column("score").Default)
	assert.Equal(t, "0", *posts.Column("score").Default)

	fks := posts.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "users", fks[0].RefTable)
	assert.Equal(t, models.Cascade, fks[0].OnDelete)
	assert.Equal(t, models.NoAction, fks[0].OnUpdate)

	require.NoError(t, schema.Validate())
}

func TestIntrospect_SkipsInternalTables(t *testing.T) {
	db, driver := openSQLite(t)
	exec(t, db,
		`CREATE TABLE "gonmigrate_migrations" ("seq" INTEGER PRIMARY KEY)`,
		`CREATE TABLE "_gonmigrate_new_users" ("id" INTEGER)`,
		`CREATE TABLE "audit" ("id" INTEGER)`,
		`CREATE TABLE "users" ("id" INTEGER)`,
	)

	in := New(db, driver)
	in.Skip = []string{"audit"}
	schema, err := in.Introspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, schema.TableNames())
}

func TestIntrospect_EmptyDatabase(t *testing.T) {
	db, driver := openSQLite(t)

	schema, err := New(db, driver).Introspect(context.Background())
	require.NoError(t, err)
	assert.True(t, schema.IsEmpty())
}

func TestIntrospect_DeadlineMapsToTimeout(t *testing.T) {
	db, driver := openSQLite(t)
	exec(t, db, `CREATE TABLE "users" ("id" INTEGER)`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := New(db, driver).Introspect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIntrospection)
	assert.ErrorIs(t, err, models.ErrTimeout)
}

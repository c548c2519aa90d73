package entities

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

const modelsSource = `package app

import (
	"time"

	"gorm.io/gorm"
)

type Status string

type Base struct {
	ID        int64 ` + "`gonmigrate:\"primary_key\"`" + `
	CreatedAt time.Time
}

type Author struct {
	Base
	Name   string  ` + "`gonmigrate:\"size:100;not_null\"`" + `
	Email  *string ` + "`gonmigrate:\"unique\"`" + `
	Status Status  ` + "`gonmigrate:\"default:'active'\"`" + `
	Books  []Book
}

func (Author) TableName() string { return "authors_tbl" }

type Book struct {
	gorm.Model
	AuthorID int64 ` + "`gonmigrate:\"references:authors_tbl.id;on_delete:cascade\"`" + `
	Title    string
	Cover    []byte
}

type helper struct {
	x int
}
`

func TestScanner_FindsTaggedStructs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/app/models.go", []byte(modelsSource), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/project/app/models_test.go", []byte("package app\n\ntype Fixture struct {\n\tID int `gonmigrate:\"primary_key\"`\n}\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/project/vendor/x/x.go", []byte("not go"), 0o644))

	entities, err := NewScanner(fs, nil).ScanForEntities("/project")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "authors_tbl", entities[0].TableName)
	assert.Equal(t, "books", entities[1].TableName)

	s, err := NewScanner(fs, nil).ScanSchema("/project")
	require.NoError(t, err)

	authors := s.Table("authors_tbl")
	assert.Equal(t, []string{"id", "created_at", "name", "email", "status"}, columnNames(authors))
	assert.Equal(t, []string{"id"}, authors.PrimaryKey().Columns)
	assert.True(t, authors.Column("id").AutoIncrement)
	assert.Equal(t, 100, authors.Column("name").Size)
	assert.False(t, authors.Column("name").Nullable)
	assert.True(t, authors.Column("email").Nullable)
	assert.Equal(t, models.TypeString, authors.Column("status").Type)
	require.NotNil(t, authors.Column("status").Default)
	assert.Equal(t, "'active'", *authors.Column("status").Default)

	books := s.Table("books")
	assert.Equal(t, []string{"id", "created_at", "updated_at", "deleted_at", "author_id", "title", "cover"}, columnNames(books))
	assert.Equal(t, models.TypeBlob, books.Column("cover").Type)
	require.Len(t, books.ForeignKeys(), 1)
	assert.Equal(t, "authors_tbl", books.ForeignKeys()[0].RefTable)
}

func TestScanner_MatchesReflection(t *testing.T) {
	src := "package app\n\ntype Tag struct {\n\tID    uint\n\tLabel string `gonmigrate:\"size:64;unique\"`\n\tHits  *int\n}\n"
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/tag.go", []byte(src), 0o644))

	scanned, err := NewScanner(fs, nil).ScanSchema("/src")
	require.NoError(t, err)

	type Tag struct {
		ID    uint
		Label string `gonmigrate:"size:64;unique"`
		Hits  *int
	}
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&Tag{}))
	reflected, err := r.Schema()
	require.NoError(t, err)

	assert.Equal(t, reflected, scanned)
}

func TestScanner_ReportsSyntaxErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/bad.go", []byte("package app\n\ntype {"), 0o644))

	_, err := NewScanner(fs, nil).ScanForEntities("/src")
	assert.Error(t, err)
}

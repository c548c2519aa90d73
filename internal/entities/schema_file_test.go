package entities

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

const schemaYAML = `tables:
  - name: users
    columns:
      - {name: id, type: int, auto_increment: true}
      - {name: email, type: string, size: 255}
    constraints:
      - {kind: primary_key, columns: [id]}
      - {kind: unique, columns: [email]}
  - name: posts
    columns:
      - {name: id, type: integer}
      - {name: user_id, type: integer}
      - {name: body, type: text, nullable: true}
    constraints:
      - {kind: primary_key, columns: [id]}
      - {kind: foreign_key, columns: [user_id], ref_table: users, ref_columns: [id], on_delete: cascade}
renames:
  - {table: users, from: mail, to: email}
`

func TestLoadSchemaFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.yaml", []byte(schemaYAML), 0o644))

	s, hints, err := LoadSchemaFile(fs, "schema.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts"}, s.TableNames())
	assert.Equal(t, models.TypeInteger, s.Table("users").Column("id").Type)
	assert.Equal(t, models.TypeString, s.Table("posts").Column("body").Type)
	assert.Equal(t, models.Cascade, s.Table("posts").ForeignKeys()[0].OnDelete)
	assert.Equal(t, []models.RenameCandidate{{Table: "users", From: "mail", To: "email"}}, hints)
}

func TestLoadSchemaFile_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, _, err := LoadSchemaFile(fs, "missing.yaml")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "typo.yaml", []byte("tables:\n  - name: t\n    colums: []\n"), 0o644))
	_, _, err = LoadSchemaFile(fs, "typo.yaml")
	assert.ErrorIs(t, err, models.ErrInvalidSchema)

	require.NoError(t, afero.WriteFile(fs, "fk.yaml", []byte(`tables:
  - name: posts
    columns: [{name: user_id, type: integer}]
    constraints:
      - {kind: foreign_key, columns: [user_id], ref_table: users, ref_columns: [id]}
`), 0o644))
	_, _, err = LoadSchemaFile(fs, "fk.yaml")
	assert.ErrorIs(t, err, models.ErrInvalidSchema)

	require.NoError(t, afero.WriteFile(fs, "type.yaml", []byte("tables:\n  - name: t\n    columns: [{name: a, type: geometry}]\n"), 0o644))
	_, _, err = LoadSchemaFile(fs, "type.yaml")
	assert.ErrorIs(t, err, models.ErrInvalidSchema)
}

func TestMarshalSchema_LoadsBack(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.yaml", []byte(schemaYAML), 0o644))
	s, _, err := LoadSchemaFile(fs, "schema.yaml")
	require.NoError(t, err)

	data, err := MarshalSchema(s)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "pulled.yaml", data, 0o644))

	again, hints, err := LoadSchemaFile(fs, "pulled.yaml")
	require.NoError(t, err)
	assert.Empty(t, hints)
	assert.Equal(t, s, again)
}

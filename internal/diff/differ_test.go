package diff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

func strPtr(s string) *string { return &s }

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

func postsTable() *models.Table {
	return &models.Table{
		Name: "posts",
		Columns: []*models.Column{
			{Name: "id", Type: models.TypeInteger, AutoIncrement: true},
			{Name: "user_id", Type: models.TypeInteger},
			{Name: "title", Type: models.TypeString},
		},
		Constraints: []*models.Constraint{
			{Kind: models.PrimaryKeyConstraint, Columns: []string{"id"}},
			{Kind: models.ForeignKeyConstraint, Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}, OnDelete: models.Cascade},
			{Kind: models.IndexConstraint, Columns: []string{"title"}},
		},
	}
}

func kinds(d *models.Diff) []models.OperationKind {
	out := make([]models.OperationKind, 0, len(d.Operations))
	for _, op := range d.Operations {
		out = append(out, op.Kind)
	}
	return out
}

func TestDiff_IdenticalSchemasProduceNothing(t *testing.T) {
	a := models.NewSchema(usersTable(), postsTable())

	d, err := Diff(a, a.Clone(), Options{})
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestDiff_EmptySchemas(t *testing.T) {
	d, err := Diff(nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestDiff_SingleAddedColumn(t *testing.T) {
	current := models.NewSchema(usersTable())
	desired := current.Clone()
	desired.Table("users").Columns = append(desired.Table("users").Columns,
		&models.Column{Name: "nickname", Type: models.TypeString, Nullable: true})

	d, err := Diff(current, desired, Options{})
	require.NoError(t, err)
	require.Len(t, d.Operations, 1)
	op := d.Operations[0]
	assert.Equal(t, models.AddColumn, op.Kind)
	assert.Equal(t, "users", op.Table)
	assert.Equal(t, "nickname", op.Column.Name)
}

func TestDiff_TypeChangeIsOneAlter(t *testing.T) {
	current := models.NewSchema(usersTable())
	desired := current.Clone()
	col := desired.Table("users").Column("property")
	col.Type = models.TypeString
	col.Nullable = false
	col.Default = strPtr("''")

	d, err := Diff(current, desired, Options{})
	require.NoError(t, err)
	require.Len(t, d.Operations, 1)
	op := d.Operations[0]
	assert.Equal(t, models.AlterColumn, op.Kind)
	assert.Equal(t, models.TypeString, op.Column.Type)
	assert.Equal(t, models.TypeInteger, op.From.Type)
}

func TestDiff_SizesOnlyCountWhenRequested(t *testing.T) {
	current := models.NewSchema(usersTable())
	desired := current.Clone()
	desired.Table("users").Column("email").Size = 512

	d, err := Diff(current, desired, Options{})
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())

	d, err = Diff(current, desired, Options{CompareSizes: true})
	require.NoError(t, err)
	assert.Equal(t, []models.OperationKind{models.AlterColumn}, kinds(d))
}

func TestDiff_AutoIncrementIsIgnored(t *testing.T) {
	current := models.NewSchema(usersTable())
	desired := current.Clone()
	desired.Table("users").Column("id").AutoIncrement = false

	d, err := Diff(current, desired, Options{})
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestDiff_NewTablesFollowForeignKeys(t *testing.T) {
	// posts is declared first but references users.
	desired := models.NewSchema(postsTable(), usersTable())

	d, err := Diff(models.NewSchema(), desired, Options{})
	require.NoError(t, err)
	require.Equal(t, []models.OperationKind{models.AddTable, models.AddTable}, kinds(d))
	assert.Equal(t, "users", d.Operations[0].Table)
	assert.Equal(t, "posts", d.Operations[1].Table)
	assert.Len(t, d.Operations[1].TableDef.ForeignKeys(), 1, "foreign key stays inline")
}

func TestDiff_CyclicForeignKeysAreDeferred(t *testing.T) {
	a := &models.Table{
		Name:    "a",
		Columns: []*models.Column{{Name: "id", Type: models.TypeInteger}, {Name: "b_id", Type: models.TypeInteger, Nullable: true}},
		Constraints: []*models.Constraint{
			{Kind: models.PrimaryKeyConstraint, Columns: []string{"id"}},
			{Kind: models.ForeignKeyConstraint, Columns: []string{"b_id"}, RefTable: "b", RefColumns: []string{"id"}},
		},
	}
	b := &models.Table{
		Name:    "b",
		Columns: []*models.Column{{Name: "id", Type: models.TypeInteger}, {Name: "a_id", Type: models.TypeInteger, Nullable: true}},
		Constraints: []*models.Constraint{
			{Kind: models.PrimaryKeyConstraint, Columns: []string{"id"}},
			{Kind: models.ForeignKeyConstraint, Columns: []string{"a_id"}, RefTable: "a", RefColumns: []string{"id"}},
		},
	}

	d, err := Diff(models.NewSchema(), models.NewSchema(a, b), Options{})
	require.NoError(t, err)
	assert.Equal(t, []models.OperationKind{models.AddTable, models.AddTable, models.AddConstraint}, kinds(d))
	assert.Empty(t, d.Operations[0].TableDef.ForeignKeys())
	assert.Len(t, d.Operations[1].TableDef.ForeignKeys(), 1)
	assert.Equal(t, "a", d.Operations[2].Table)
}

func TestDiff_DropOrdering(t *testing.T) {
	current := models.NewSchema(usersTable(), postsTable())
	desired := models.NewSchema(usersTable())
	desired.Table("users").Columns = desired.Table("users").Columns[:2] // drop property
	desired.Table("users").Columns = append(desired.Table("users").Columns,
		&models.Column{Name: "age", Type: models.TypeInteger, Nullable: true, Default: strPtr("0")})

	d, err := Diff(current, desired, Options{AllowDropAdd: true})
	require.NoError(t, err)
	assert.Equal(t, []models.OperationKind{
		models.DropConstraint, // posts foreign key
		models.DropColumn,     // users.property
		models.DropTable,      // posts
		models.AddColumn,      // users.age
	}, kinds(d))
	assert.Equal(t, models.ForeignKeyConstraint, d.Operations[0].Constraint.Kind)
	assert.Empty(t, d.Operations[2].TableDef.ForeignKeys())
}

func TestDiff_ConstraintChangeIsDropAndAdd(t *testing.T) {
	current := models.NewSchema(usersTable(), postsTable())
	desired := current.Clone()
	desired.Table("posts").ForeignKeys()[0].OnDelete = models.Restrict
	desired.Table("posts").Constraints = append(desired.Table("posts").Constraints,
		&models.Constraint{Kind: models.UniqueConstraint, Columns: []string{"user_id", "title"}})

	d, err := Diff(current, desired, Options{})
	require.NoError(t, err)
	assert.Equal(t, []models.OperationKind{models.DropConstraint, models.AddConstraint, models.AddConstraint}, kinds(d))
	assert.Equal(t, models.Cascade, d.Operations[0].Constraint.OnDelete)
	assert.Equal(t, models.UniqueConstraint, d.Operations[1].Constraint.Kind)
	assert.Equal(t, models.Restrict, d.Operations[2].Constraint.OnDelete)
}

func TestDiff_UnhintedRenameIsAConflict(t *testing.T) {
	current := models.NewSchema(usersTable())
	desired := current.Clone()
	desired.Table("users").Column("property").Name = "attribute"

	_, err := Diff(current, desired, Options{})
	var conflict *models.DiffConflictError
	require.True(t, errors.As(err, &conflict))
	assert.ErrorIs(t, err, models.ErrDiffConflict)
	assert.Equal(t, []models.RenameCandidate{{Table: "users", From: "property", To: "attribute"}}, conflict.Candidates)

	d, err := Diff(current, desired, Options{AllowDropAdd: true})
	require.NoError(t, err)
	assert.Equal(t, []models.OperationKind{models.DropColumn, models.AddColumn}, kinds(d))
}

func TestDiff_ColumnRenameHints(t *testing.T) {
	current := models.NewSchema(usersTable())

	desired := current.Clone()
	desired.Table("users").Column("property").Name = "attribute"
	d, err := Diff(current, desired, Options{Renames: []models.RenameCandidate{{Table: "users", From: "property", To: "attribute"}}})
	require.NoError(t, err)
	require.Equal(t, []models.OperationKind{models.RenameColumn}, kinds(d))
	assert.Equal(t, "property", d.Operations[0].OldName)
	assert.Equal(t, "attribute", d.Operations[0].NewName)

	tagged := current.Clone()
	col := tagged.Table("users").Column("property")
	col.Name, col.OldName = "attribute", "property"
	d, err = Diff(current, tagged, Options{})
	require.NoError(t, err)
	assert.Equal(t, []models.OperationKind{models.RenameColumn}, kinds(d))

	// Once applied the tag is inert.
	d, err = Diff(desired, tagged, Options{})
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestDiff_TableRenameHintUpdatesReferences(t *testing.T) {
	current := models.NewSchema(usersTable(), postsTable())
	desired := current.Clone()
	desired.Table("users").Name = "accounts"
	desired.Table("posts").ForeignKeys()[0].RefTable = "accounts"

	_, err := Diff(current, desired, Options{})
	require.ErrorIs(t, err, models.ErrDiffConflict)

	d, err := Diff(current, desired, Options{Renames: []models.RenameCandidate{{From: "users", To: "accounts"}}})
	require.NoError(t, err)
	require.Equal(t, []models.OperationKind{models.RenameTable}, kinds(d))
	assert.Equal(t, "users", d.Operations[0].Table)
	assert.Equal(t, "accounts", d.Operations[0].NewName)
}

func TestDiff_IsDeterministic(t *testing.T) {
	current := models.NewSchema(usersTable())
	desired := models.NewSchema(postsTable(), usersTable(), &models.Table{
		Name:    "tags",
		Columns: []*models.Column{{Name: "id", Type: models.TypeInteger}, {Name: "post_id", Type: models.TypeInteger}},
		Constraints: []*models.Constraint{
			{Kind: models.PrimaryKeyConstraint, Columns: []string{"id"}},
			{Kind: models.ForeignKeyConstraint, Columns: []string{"post_id"}, RefTable: "posts", RefColumns: []string{"id"}},
		},
	})
	desired.Table("users").Column("property").Type = models.TypeString

	first, err := Diff(current, desired, Options{})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Diff(current.Clone(), desired.Clone(), Options{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []models.OperationKind{models.AlterColumn, models.AddTable, models.AddTable}, kinds(first))
	assert.Equal(t, "posts", first.Operations[1].Table)
	assert.Equal(t, "tags", first.Operations[2].Table)
}

func TestDiff_InverseRestoresCurrent(t *testing.T) {
	current := models.NewSchema(usersTable(), postsTable())
	desired := models.NewSchema(usersTable())
	desired.Table("users").Column("property").Type = models.TypeString
	desired.Tables = append(desired.Tables, &models.Table{
		Name:        "profiles",
		Columns:     []*models.Column{{Name: "user_id", Type: models.TypeInteger}},
		Constraints: []*models.Constraint{{Kind: models.ForeignKeyConstraint, Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}}},
	})

	d, err := Diff(current, desired, Options{})
	require.NoError(t, err)

	after, err := current.ApplyAll(d)
	require.NoError(t, err)
	back, err := after.ApplyAll(d.Inverse())
	require.NoError(t, err)

	again, err := Diff(back, current, Options{})
	require.NoError(t, err)
	assert.True(t, again.IsEmpty(), "unexpected operations: %v", again.Operations)
}

func TestDiff_RejectsInvalidDesiredSchema(t *testing.T) {
	desired := models.NewSchema(postsTable()) // references missing users

	_, err := Diff(models.NewSchema(), desired, Options{})
	assert.ErrorIs(t, err, models.ErrInvalidSchema)
}

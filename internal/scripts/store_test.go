package scripts

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

func record(id string) *models.MigrationRecord {
	rec := &models.MigrationRecord{
		ID:        id,
		Name:      id[15:],
		Dialect:   "sqlite",
		CreatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Up:        []string{`CREATE TABLE "users" (` + "\n" + `  "id" INTEGER NOT NULL` + "\n)"},
		Down:      []string{`DROP TABLE "users"`},
	}
	rec.Checksum = rec.ComputeChecksum()
	return rec
}

func TestStore_SaveLoad(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "migrations")
	rec := record("20261019120000_init")
	require.NoError(t, store.Save(rec))

	loaded, err := store.Load(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, rec.Up, loaded.Up)
	assert.Equal(t, rec.Down, loaded.Down)
	assert.Equal(t, rec.Checksum, loaded.Checksum)
	assert.Equal(t, rec.Checksum, loaded.ComputeChecksum())
	assert.True(t, rec.CreatedAt.Equal(loaded.CreatedAt))
}

func TestStore_ListSortedAndFiltered(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "migrations")
	for _, id := range []string{"20261019120500_add_posts", "20261019120000_init", "20261019121000_rename"} {
		require.NoError(t, store.Save(record(id)))
	}
	require.NoError(t, afero.WriteFile(fs, "migrations/README.yaml", []byte("x: 1"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "migrations/.snapshot.json", []byte("{}"), 0o644))

	records, err := store.List()
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"20261019120000_init", "20261019120500_add_posts", "20261019121000_rename"}, ids)
}

func TestStore_MissingDirectory(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "nowhere")
	ids, err := store.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_ScriptsAreImmutable(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "migrations")
	rec := record("20261019120000_init")
	require.NoError(t, store.Save(rec))

	err := store.Save(rec)
	assert.ErrorIs(t, err, models.ErrStorage)
}

func TestStore_RejectsInvalidID(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "migrations")
	err := store.Save(&models.MigrationRecord{ID: "init"})
	assert.ErrorIs(t, err, models.ErrStorage)
}

func TestStore_LoadAndRemoveUnknown(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "migrations")

	_, err := store.Load("20261019120000_init")
	assert.ErrorIs(t, err, models.ErrUnknownMigration)

	err = store.Remove("20261019120000_init")
	assert.ErrorIs(t, err, models.ErrUnknownMigration)
}

func TestStore_Remove(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "migrations")
	require.NoError(t, store.Save(record("20261019120000_init")))
	require.NoError(t, store.Remove("20261019120000_init"))

	ids, err := store.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

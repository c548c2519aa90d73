package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// FileName is the snapshot file inside the migrations directory.
const FileName = ".snapshot.json"

// SupportedVersions is the range of snapshot format versions this build reads.
const SupportedVersions = ">= 1.0, < 2.0"

var supported = version.MustConstraints(version.NewConstraint(SupportedVersions))

// Store persists the last known applied schema.
type Store struct {
	fs   afero.Fs
	path string
	now  func() time.Time
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, path: filepath.Join(dir, FileName), now: time.Now}
}

func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a snapshot has been written.
func (s *Store) Exists() (bool, error) {
	ok, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return false, fmt.Errorf("%w: failed to stat snapshot: %v", models.ErrStorage, err)
	}
	return ok, nil
}

// Load returns the stored schema, or ErrSnapshotNotFound.
func (s *Store) Load() (*models.Schema, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("%w: failed to read snapshot %s: %v", models.ErrStorage, s.path, err)
	}

	var snap models.ModelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: failed to parse snapshot %s: %v", models.ErrStorage, s.path, err)
	}
	if err := checkVersion(snap.Version); err != nil {
		return nil, err
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return snap.Schema, nil
}

// Save writes the schema through a temp file and a rename so readers never
// see a partially written snapshot.
func (s *Store) Save(schema *models.Schema) error {
	snap := models.NewModelSnapshot(schema, s.now())
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to serialize snapshot: %v", models.ErrStorage, err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrStorage, dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp snapshot: %v", models.ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to write snapshot: %v", models.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to sync snapshot: %v", models.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to close snapshot: %v", models.ErrStorage, err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("%w: failed to replace snapshot: %v", models.ErrStorage, err)
	}
	return nil
}

// Remove deletes the snapshot; a missing file is not an error.
func (s *Store) Remove() error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove snapshot: %v", models.ErrStorage, err)
	}
	return nil
}

func checkVersion(raw string) error {
	v, err := version.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: snapshot has invalid format_version %q", models.ErrStorage, raw)
	}
	if !supported.Check(v) {
		return fmt.Errorf("%w: snapshot format_version %s is not supported (want %s)", models.ErrStorage, raw, SupportedVersions)
	}
	return nil
}

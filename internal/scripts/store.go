package scripts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Extension of migration script files.
const Extension = ".yaml"

var idPattern = regexp.MustCompile(`^\d{14}_[a-z0-9_]+$`)

// Store reads and writes migration scripts, one YAML file per migration.
type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+Extension)
}

// IDs lists the script IDs on disk in ascending order.
func (s *Store) IDs() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrStorage, s.dir, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), Extension)
		if idPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// List loads every script in ascending ID order.
func (s *Store) List() ([]*models.MigrationRecord, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	records := make([]*models.MigrationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) Load(id string) (*models.MigrationRecord, error) {
	data, err := afero.ReadFile(s.fs, s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownMigration, id)
		}
		return nil, fmt.Errorf("%w: failed to read migration %s: %v", models.ErrStorage, id, err)
	}

	var rec models.MigrationRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: failed to parse migration %s: %v", models.ErrStorage, id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		return nil, fmt.Errorf("%w: migration file %s declares id %s", models.ErrStorage, id, rec.ID)
	}
	return &rec, nil
}

// Save writes a new script. Existing scripts are immutable and are never
// overwritten.
func (s *Store) Save(rec *models.MigrationRecord) error {
	if !idPattern.MatchString(rec.ID) {
		return fmt.Errorf("%w: invalid migration id %q", models.ErrStorage, rec.ID)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrStorage, s.dir, err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize migration %s: %v", models.ErrStorage, rec.ID, err)
	}

	f, err := s.fs.OpenFile(s.path(rec.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: failed to create migration %s: %v", models.ErrStorage, rec.ID, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to write migration %s: %v", models.ErrStorage, rec.ID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to write migration %s: %v", models.ErrStorage, rec.ID, err)
	}
	return nil
}

func (s *Store) Remove(id string) error {
	if err := s.fs.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", models.ErrUnknownMigration, id)
		}
		return fmt.Errorf("%w: failed to remove migration %s: %v", models.ErrStorage, id, err)
	}
	return nil
}

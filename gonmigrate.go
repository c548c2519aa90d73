// Package gonmigrate generates and applies schema migrations by diffing a
// desired schema against the last snapshot or the live database.
package gonmigrate

import (
	"fmt"

	"github.com/spf13/afero"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/shepherrrd/gonmigrate/internal/diff"
	"github.com/shepherrrd/gonmigrate/internal/drivers"
	"github.com/shepherrrd/gonmigrate/internal/entities"
	"github.com/shepherrrd/gonmigrate/internal/migrations"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

type (
	Schema            = models.Schema
	Table             = models.Table
	Column            = models.Column
	Constraint        = models.Constraint
	LogicalType       = models.LogicalType
	ConstraintKind    = models.ConstraintKind
	ReferentialAction = models.ReferentialAction
	Operation         = models.Operation
	Diff              = models.Diff
	RenameCandidate   = models.RenameCandidate
	MigrationRecord   = models.MigrationRecord
	AppliedMigration  = models.AppliedMigration
	MigrationStatus   = models.MigrationStatus

	MigrationError        = models.MigrationError
	ChecksumMismatchError = models.ChecksumMismatchError
	DiffConflictError     = models.DiffConflictError

	DatabaseDriver = drivers.DatabaseDriver
	Migrator       = migrations.Migrator
	Options        = migrations.Options
	DiffOptions    = diff.Options
	MigrationInfo  = migrations.MigrationInfo
	Metrics        = migrations.Metrics
	Registry       = entities.Registry
	EntityModel    = entities.EntityModel
)

const (
	TypeInteger  = models.TypeInteger
	TypeFloat    = models.TypeFloat
	TypeString   = models.TypeString
	TypeBoolean  = models.TypeBoolean
	TypeDateTime = models.TypeDateTime
	TypeBlob     = models.TypeBlob
)

var (
	ErrStorage                = models.ErrStorage
	ErrIntrospection          = models.ErrIntrospection
	ErrDiffConflict           = models.ErrDiffConflict
	ErrScriptChecksumMismatch = models.ErrScriptChecksumMismatch
	ErrTimeout                = models.ErrTimeout
	ErrTransaction            = models.ErrTransaction
	ErrSnapshotNotFound       = models.ErrSnapshotNotFound
	ErrNoChanges              = models.ErrNoChanges
	ErrInitialMigrationExists = models.ErrInitialMigrationExists
	ErrUnknownMigration       = models.ErrUnknownMigration
	ErrLockHeld               = models.ErrLockHeld
	ErrInvalidSchema          = models.ErrInvalidSchema
	ErrOutOfOrder             = models.ErrOutOfOrder
)

var NewMetrics = migrations.NewMetrics

// NewSchema builds a schema from tables.
func NewSchema(tables ...*Table) *Schema {
	return models.NewSchema(tables...)
}

// NewDriver returns the dialect driver for "postgres", "mysql" or "sqlite"
// (aliases accepted).
func NewDriver(name string) (DatabaseDriver, error) {
	return drivers.NewDriver(name)
}

// Open connects to the database with the named driver and returns the
// connection together with the driver.
func Open(driverName, dsn string) (*gorm.DB, DatabaseDriver, error) {
	driver, err := drivers.NewDriver(driverName)
	if err != nil {
		return nil, nil, err
	}
	db, err := driver.Connect(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", driver.Name(), err)
	}
	return db, driver, nil
}

// NewMigrator creates a migrator for db. desired may be nil for commands
// that only read or apply existing scripts.
func NewMigrator(db *gorm.DB, driver DatabaseDriver, desired *Schema, opts Options) (*Migrator, error) {
	return migrations.NewMigrator(db, driver, desired, opts)
}

// NewRegistry returns an entity registry. A nil namer means gorm's
// snake_case naming.
func NewRegistry(namer schema.Namer) *Registry {
	return entities.NewRegistry(namer)
}

// SchemaFromEntities registers the given structs and returns their schema.
func SchemaFromEntities(entityValues ...any) (*Schema, error) {
	r := NewRegistry(nil)
	if err := r.Register(entityValues...); err != nil {
		return nil, err
	}
	return r.Schema()
}

// LoadSchemaFile reads a YAML schema file and its rename hints.
func LoadSchemaFile(path string) (*Schema, []RenameCandidate, error) {
	return entities.LoadSchemaFile(afero.NewOsFs(), path)
}

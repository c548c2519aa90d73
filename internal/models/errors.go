package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorage                = errors.New("migration storage failure")
	ErrIntrospection          = errors.New("database introspection failed")
	ErrDiffConflict           = errors.New("ambiguous schema change")
	ErrScriptChecksumMismatch = errors.New("migration script checksum mismatch")
	ErrTimeout                = errors.New("operation timed out")
	ErrTransaction            = errors.New("migration transaction failed")

	ErrSnapshotNotFound       = errors.New("schema snapshot not found")
	ErrNoChanges              = errors.New("no schema changes detected")
	ErrInitialMigrationExists = errors.New("initial migration cannot be created, migrations already exist")
	ErrUnknownMigration       = errors.New("unknown migration")
	ErrLockHeld               = errors.New("migration lock is held by another process")
	ErrInvalidSchema          = errors.New("invalid schema")
	ErrOutOfOrder             = errors.New("pending migration is older than an applied one")
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// MigrationError reports which migration failed while applying or reverting.
type MigrationError struct {
	ID        string
	Direction Direction
	Statement string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("migration %s (%s) failed at %q: %v", e.ID, e.Direction, e.Statement, e.Err)
	}
	return fmt.Sprintf("migration %s (%s) failed: %v", e.ID, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// ChecksumMismatchError means an applied migration's script changed on disk.
type ChecksumMismatchError struct {
	ID       string
	Recorded string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("migration %s was applied with checksum %s but its script now has checksum %s",
		e.ID, e.Recorded, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrScriptChecksumMismatch }

// RenameCandidate is a dropped/added pair that may be a rename.
type RenameCandidate struct {
	Table string
	From  string
	To    string
}

func (c RenameCandidate) String() string {
	if c.Table == "" {
		return fmt.Sprintf("table %s -> %s", c.From, c.To)
	}
	return fmt.Sprintf("column %s.%s -> %s", c.Table, c.From, c.To)
}

// DiffConflictError lists the changes that look like renames but carry no
// rename hint.
type DiffConflictError struct {
	Candidates []RenameCandidate
}

func (e *DiffConflictError) Error() string {
	parts := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("possible renames need a hint or explicit drop confirmation: %s", strings.Join(parts, "; "))
}

func (e *DiffConflictError) Unwrap() error { return ErrDiffConflict }

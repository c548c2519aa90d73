package models

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

const LedgerTableName = "gonmigrate_migrations"

// LedgerEntry is one row of the applied-migration ledger. Rows are only ever
// appended: an "up" row when a migration is applied and a "down" tombstone
// when it is reverted.
type LedgerEntry struct {
	Seq         uint      `gorm:"column:seq;primaryKey;autoIncrement"`
	MigrationID string    `gorm:"column:migration_id;size:255;not null;index"`
	Name        string    `gorm:"column:name;size:255;not null"`
	Checksum    string    `gorm:"column:checksum;size:64;not null"`
	Action      Direction `gorm:"column:action;size:8;not null"`
	Batch       string    `gorm:"column:batch;size:36"`
	AppliedAt   time.Time `gorm:"column:applied_at;not null"`
}

func (LedgerEntry) TableName() string {
	return LedgerTableName
}

// AppliedMigration is the replayed ledger state of one applied migration.
type AppliedMigration struct {
	ID        string
	Name      string
	Checksum  string
	Batch     string
	AppliedAt time.Time
}

type MigrationStatus string

const (
	StatusPending    MigrationStatus = "pending"
	StatusApplied    MigrationStatus = "applied"
	StatusRolledBack MigrationStatus = "rolled_back"
)

// MigrationRecord is a generated migration script. It is immutable once
// written; applied/reverted state lives in the ledger.
type MigrationRecord struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Dialect   string    `yaml:"dialect"`
	Checksum  string    `yaml:"checksum"`
	CreatedAt time.Time `yaml:"created_at"`
	Up        []string  `yaml:"up"`
	Down      []string  `yaml:"down"`

	// Operations are the structural changes behind the SQL. They are not
	// part of the checksum and only serve to rewind the snapshot when an
	// unapplied script is removed.
	Operations []Operation `yaml:"operations,omitempty"`
}

// ComputeChecksum hashes the executable content of a script.
func ComputeChecksum(up, down []string) string {
	h := sha256.New()
	h.Write([]byte("up\n"))
	for _, stmt := range up {
		h.Write([]byte(strings.TrimSpace(stmt)))
		h.Write([]byte{0})
	}
	h.Write([]byte("down\n"))
	for _, stmt := range down {
		h.Write([]byte(strings.TrimSpace(stmt)))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (m *MigrationRecord) ComputeChecksum() string {
	return ComputeChecksum(m.Up, m.Down)
}

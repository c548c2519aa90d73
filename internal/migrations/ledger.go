package migrations

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Ledger is the append-only record of applied and reverted migrations.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Ensure creates the ledger table on first use.
func (l *Ledger) Ensure(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&models.LedgerEntry{}); err != nil {
		return fmt.Errorf("%w: failed to ensure ledger table: %v", models.ErrStorage, err)
	}
	return nil
}

// Entries returns every ledger row in insertion order.
func (l *Ledger) Entries(ctx context.Context) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := l.db.WithContext(ctx).Order("seq").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger: %v", models.ErrStorage, err)
	}
	return entries, nil
}

// Applied replays the ledger and returns the migrations currently applied,
// in ascending ID order.
func (l *Ledger) Applied(ctx context.Context) ([]models.AppliedMigration, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return replay(entries), nil
}

func replay(entries []models.LedgerEntry) []models.AppliedMigration {
	state := make(map[string]models.AppliedMigration)
	for _, e := range entries {
		switch e.Action {
		case models.DirectionUp:
			state[e.MigrationID] = models.AppliedMigration{
				ID:        e.MigrationID,
				Name:      e.Name,
				Checksum:  e.Checksum,
				Batch:     e.Batch,
				AppliedAt: e.AppliedAt,
			}
		case models.DirectionDown:
			delete(state, e.MigrationID)
		}
	}

	applied := make([]models.AppliedMigration, 0, len(state))
	for _, a := range state {
		applied = append(applied, a)
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].ID < applied[j].ID })
	return applied
}

// Append writes one row through db, which may be a transaction.
func (l *Ledger) Append(db *gorm.DB, entry *models.LedgerEntry) error {
	if err := db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record %s of %s: %w", entry.Action, entry.MigrationID, err)
	}
	return nil
}

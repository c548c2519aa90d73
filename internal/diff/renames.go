package diff

import (
	"github.com/shepherrrd/gonmigrate/internal/models"
)

// detectRenames applies rename hints to working and returns the rename
// operations. Hints that no longer match (already applied, or naming
// something absent) are ignored so they can stay in configuration.
func detectRenames(working, desired *models.Schema, hints []models.RenameCandidate) ([]models.Operation, error) {
	var ops []models.Operation

	for _, h := range hints {
		if h.Table != "" {
			continue
		}
		if working.Table(h.From) == nil || working.Table(h.To) != nil || desired.Table(h.To) == nil {
			continue
		}
		op := models.Operation{Kind: models.RenameTable, Table: h.From, NewName: h.To}
		if err := working.Apply(op); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	renameColumn := func(table, from, to string) error {
		wt, dt := working.Table(table), desired.Table(table)
		if wt == nil || dt == nil {
			return nil
		}
		if wt.Column(from) == nil || wt.Column(to) != nil || dt.Column(to) == nil || dt.Column(from) != nil {
			return nil
		}
		op := models.Operation{Kind: models.RenameColumn, Table: table, OldName: from, NewName: to}
		if err := working.Apply(op); err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	}

	for _, h := range hints {
		if h.Table == "" {
			continue
		}
		if err := renameColumn(h.Table, h.From, h.To); err != nil {
			return nil, err
		}
	}
	for _, dt := range desired.Tables {
		for _, col := range dt.Columns {
			if col.OldName == "" {
				continue
			}
			if err := renameColumn(dt.Name, col.OldName, col.Name); err != nil {
				return nil, err
			}
		}
	}
	return ops, nil
}

// renameCandidates pairs dropped and added tables or columns that are
// structurally identical apart from their name.
func renameCandidates(b *buckets, compareSizes bool) []models.RenameCandidate {
	var out []models.RenameCandidate

	used := make(map[string]bool)
	for _, drop := range b.dropTables {
		for _, add := range b.addTables {
			if used[add.Table] {
				continue
			}
			if sameShape(drop.TableDef, add.TableDef, compareSizes) {
				out = append(out, models.RenameCandidate{From: drop.Table, To: add.Table})
				used[add.Table] = true
				break
			}
		}
	}

	usedCols := make(map[string]bool)
	for _, drop := range b.dropCols {
		for _, add := range b.addCols {
			key := add.Table + "." + add.Column.Name
			if add.Table != drop.Table || usedCols[key] {
				continue
			}
			if drop.Column.Equal(add.Column, compareSizes) {
				out = append(out, models.RenameCandidate{Table: drop.Table, From: drop.Column.Name, To: add.Column.Name})
				usedCols[key] = true
				break
			}
		}
	}
	return out
}

// sameShape compares the columns and non foreign key constraints of two
// tables, ignoring the table names.
func sameShape(a, b *models.Table, compareSizes bool) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for _, col := range a.Columns {
		other := b.Column(col.Name)
		if other == nil || !col.Equal(other, compareSizes) {
			return false
		}
	}

	keys := func(t *models.Table) map[string]bool {
		out := make(map[string]bool)
		for _, con := range t.Constraints {
			if con.Kind != models.ForeignKeyConstraint {
				out[con.Key()] = true
			}
		}
		return out
	}
	ka, kb := keys(a), keys(b)
	if len(ka) != len(kb) {
		return false
	}
	for k := range ka {
		if !kb[k] {
			return false
		}
	}
	return true
}

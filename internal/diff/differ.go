// Package diff computes the ordered structural difference between two
// schemas.
package diff

import (
	"fmt"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Options tune how schemas are compared.
type Options struct {
	// Renames are explicit rename hints. An empty Table renames a table;
	// otherwise From and To are column names inside Table (the new table
	// name when the table is renamed too).
	Renames []models.RenameCandidate
	// AllowDropAdd accepts drop/add pairs that look like renames.
	AllowDropAdd bool
	// CompareSizes makes size, precision and scale part of column equality.
	CompareSizes bool
}

// buckets collect operations per phase; Diff concatenates them in order.
type buckets struct {
	renames    []models.Operation
	dropFKs    []models.Operation
	dropOther  []models.Operation
	dropCols   []models.Operation
	dropTables []models.Operation
	alters     []models.Operation
	addCols    []models.Operation
	addTables  []models.Operation
	addOther   []models.Operation
	addFKs     []models.Operation
}

func (b *buckets) ordered() []models.Operation {
	var ops []models.Operation
	for _, phase := range [][]models.Operation{
		b.renames, b.dropFKs, b.dropOther, b.dropCols, b.dropTables,
		b.alters, b.addCols, b.addTables, b.addOther, b.addFKs,
	} {
		ops = append(ops, phase...)
	}
	return ops
}

// Diff returns the operations that turn current into desired. The result is
// deterministic: only ordered slices are walked and ties keep declaration
// order.
func Diff(current, desired *models.Schema, opts Options) (*models.Diff, error) {
	if current == nil {
		current = models.NewSchema()
	}
	if desired == nil {
		desired = models.NewSchema()
	}
	if err := desired.Validate(); err != nil {
		return nil, fmt.Errorf("desired schema: %w", err)
	}

	var b buckets
	working := current.Clone()

	renames, err := detectRenames(working, desired, opts.Renames)
	if err != nil {
		return nil, err
	}
	b.renames = renames

	for _, wt := range working.Tables {
		dt := desired.Table(wt.Name)
		if dt == nil {
			dropTable(&b, wt)
			continue
		}
		for _, con := range wt.Constraints {
			if dt.Constraint(con) == nil {
				op := models.Operation{Kind: models.DropConstraint, Table: wt.Name, Constraint: con.Clone()}
				if con.Kind == models.ForeignKeyConstraint {
					b.dropFKs = append(b.dropFKs, op)
				} else {
					b.dropOther = append(b.dropOther, op)
				}
			}
		}
		for _, col := range wt.Columns {
			if dt.Column(col.Name) == nil {
				b.dropCols = append(b.dropCols, models.Operation{Kind: models.DropColumn, Table: wt.Name, Column: col.Clone()})
			}
		}
	}

	var added []*models.Table
	for _, dt := range desired.Tables {
		wt := working.Table(dt.Name)
		if wt == nil {
			added = append(added, dt)
			continue
		}
		for _, col := range dt.Columns {
			wc := wt.Column(col.Name)
			switch {
			case wc == nil:
				b.addCols = append(b.addCols, models.Operation{Kind: models.AddColumn, Table: dt.Name, Column: stripHints(col)})
			case !wc.Equal(col, opts.CompareSizes):
				b.alters = append(b.alters, models.Operation{Kind: models.AlterColumn, Table: dt.Name, Column: stripHints(col), From: wc.Clone()})
			}
		}
		for _, con := range dt.Constraints {
			if wt.Constraint(con) == nil {
				op := models.Operation{Kind: models.AddConstraint, Table: dt.Name, Constraint: con.Clone()}
				if con.Kind == models.ForeignKeyConstraint {
					b.addFKs = append(b.addFKs, op)
				} else {
					b.addOther = append(b.addOther, op)
				}
			}
		}
	}

	addTables(&b, working, desired, added)

	if !opts.AllowDropAdd {
		if candidates := renameCandidates(&b, opts.CompareSizes); len(candidates) > 0 {
			return nil, &models.DiffConflictError{Candidates: candidates}
		}
	}

	d := &models.Diff{Operations: b.ordered()}
	if d.Operations == nil {
		d.Operations = []models.Operation{}
	}
	if _, err := current.ApplyAll(d); err != nil {
		return nil, fmt.Errorf("diff does not replay onto the current schema: %w", err)
	}
	return d, nil
}

// dropTable drops the foreign keys of a table explicitly before the table,
// so the inverse recreates the table first and its foreign keys last.
func dropTable(b *buckets, t *models.Table) {
	def := t.Clone()
	def.Constraints = def.Constraints[:0]
	for _, con := range t.Constraints {
		if con.Kind == models.ForeignKeyConstraint {
			b.dropFKs = append(b.dropFKs, models.Operation{Kind: models.DropConstraint, Table: t.Name, Constraint: con.Clone()})
			continue
		}
		def.Constraints = append(def.Constraints, con.Clone())
	}
	b.dropTables = append(b.dropTables, models.Operation{Kind: models.DropTable, Table: t.Name, TableDef: def})
}

// addTables creates new tables in foreign key dependency order. A foreign
// key stays inline when its target exists by the time the table is created;
// otherwise it becomes a trailing AddConstraint.
func addTables(b *buckets, working, desired *models.Schema, added []*models.Table) {
	if len(added) == 0 {
		return
	}
	available := make(map[string]bool)
	for _, t := range working.Tables {
		if desired.Table(t.Name) != nil {
			available[t.Name] = true
		}
	}

	for _, t := range sortByDependencies(added) {
		def := stripTableHints(t)
		def.Constraints = def.Constraints[:0]
		var deferred []models.Operation
		for _, con := range t.Constraints {
			if con.Kind == models.ForeignKeyConstraint && !inlineable(con, t, working, available) {
				deferred = append(deferred, models.Operation{Kind: models.AddConstraint, Table: t.Name, Constraint: con.Clone()})
				continue
			}
			def.Constraints = append(def.Constraints, con.Clone())
		}
		b.addTables = append(b.addTables, models.Operation{Kind: models.AddTable, Table: t.Name, TableDef: def})
		b.addFKs = append(b.addFKs, deferred...)
		available[t.Name] = true
	}
}

func inlineable(fk *models.Constraint, t *models.Table, working *models.Schema, available map[string]bool) bool {
	if fk.RefTable == t.Name {
		return true
	}
	if !available[fk.RefTable] {
		return false
	}
	// An existing target must already carry the referenced key; keys added
	// in this diff land after the tables.
	if existing := working.Table(fk.RefTable); existing != nil {
		return hasKey(existing, fk.RefColumns)
	}
	return true
}

func hasKey(t *models.Table, cols []string) bool {
	for _, con := range t.Constraints {
		if con.Kind != models.PrimaryKeyConstraint && con.Kind != models.UniqueConstraint {
			continue
		}
		if equalStrings(con.Columns, cols) {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stripHints(c *models.Column) *models.Column {
	out := c.Clone()
	out.OldName = ""
	return out
}

func stripTableHints(t *models.Table) *models.Table {
	out := t.Clone()
	for _, c := range out.Columns {
		c.OldName = ""
	}
	return out
}

// Package generator turns a diff into an ordered, reversible migration
// script for one dialect.
package generator

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm/schema"

	"github.com/shepherrrd/gonmigrate/internal/drivers"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

const idTimeLayout = "20060102150405"

type Generator struct {
	driver drivers.DatabaseDriver
	now    func() time.Time
}

// New returns a generator rendering for driver. A nil clock means time.Now.
func New(driver drivers.DatabaseDriver, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{driver: driver, now: now}
}

// Generate renders up and down statements for d. current is the schema the
// diff applies to; the returned schema is current with d applied. existing
// are the IDs already on disk, used to keep new IDs strictly increasing.
func (g *Generator) Generate(d *models.Diff, name string, current *models.Schema, existing []string) (*models.MigrationRecord, *models.Schema, error) {
	if current == nil {
		current = models.NewSchema()
	}

	up, after, err := g.Render(d.Operations, current)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render up: %w", err)
	}
	down, _, err := g.Render(d.Inverse().Operations, after)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render down: %w", err)
	}

	now := g.now().UTC()
	rec := &models.MigrationRecord{
		ID:         g.NextID(name, existing),
		Name:       name,
		Dialect:    g.driver.Name(),
		CreatedAt:  now,
		Up:         up,
		Down:       down,
		Operations: d.Operations,
	}
	rec.Checksum = rec.ComputeChecksum()
	return rec, after, nil
}

// Render replays ops over a copy of start, rendering each one against the
// affected table's state before and after it.
func (g *Generator) Render(ops []models.Operation, start *models.Schema) ([]string, *models.Schema, error) {
	working := start.Clone()
	stmts := []string{}
	for _, op := range ops {
		var before, after *models.Table
		if t := working.Table(op.Table); t != nil {
			before = t.Clone()
		}
		if err := working.Apply(op); err != nil {
			return nil, nil, err
		}
		name := op.Table
		if op.Kind == models.RenameTable {
			name = op.NewName
		}
		if t := working.Table(name); t != nil {
			after = t.Clone()
		}

		out, err := g.driver.RenderOperation(op, before, after)
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, out...)
	}
	return stmts, working, nil
}

// NextID returns YYYYMMDDHHMMSS_<snake_name>. The timestamp is bumped past
// the newest existing ID so lexical order stays chronological.
func (g *Generator) NextID(name string, existing []string) string {
	ts := g.now().UTC().Truncate(time.Second)
	for _, id := range existing {
		prev, ok := idTime(id)
		if ok && !ts.After(prev) {
			ts = prev.Add(time.Second)
		}
	}
	return ts.Format(idTimeLayout) + "_" + SnakeName(name)
}

func idTime(id string) (time.Time, bool) {
	if len(id) < len(idTimeLayout) {
		return time.Time{}, false
	}
	ts, err := time.Parse(idTimeLayout, id[:len(idTimeLayout)])
	return ts, err == nil
}

// SnakeName normalises a free-form migration name: "AddPosts" and
// "add posts" both become "add_posts".
func SnakeName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r > unicode.MaxASCII || (!unicode.IsLetter(r) && !unicode.IsDigit(r))
	})
	ns := schema.NamingStrategy{}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, strings.ToLower(ns.ColumnName("", w)))
	}
	if len(parts) == 0 {
		return "migration"
	}
	return strings.Join(parts, "_")
}

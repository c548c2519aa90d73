// Package introspect reads the live database structure into a schema.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/drivers"
	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Introspector reads catalog metadata through a dialect driver.
type Introspector struct {
	db     *gorm.DB
	driver drivers.DatabaseDriver
	// Skip lists extra tables to leave out, next to the ledger and the
	// engine's scratch tables.
	Skip []string
}

func New(db *gorm.DB, driver drivers.DatabaseDriver) *Introspector {
	return &Introspector{db: db, driver: driver}
}

// Introspect returns the schema of every user table, ordered by name.
// Tables are described concurrently, bounded by the driver's limit.
func (i *Introspector) Introspect(ctx context.Context) (*models.Schema, error) {
	names, err := i.driver.ListTables(ctx, i.db)
	if err != nil {
		return nil, wrap(ctx, err)
	}

	var tables []string
	for _, name := range names {
		if !i.skipped(name) {
			tables = append(tables, name)
		}
	}

	described := make([]*models.Table, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	limit := i.driver.IntrospectionConcurrency()
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for idx, name := range tables {
		g.Go(func() error {
			t, err := i.driver.DescribeTable(gctx, i.db, name)
			if err != nil {
				return err
			}
			described[idx] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrap(ctx, err)
	}
	return models.NewSchema(described...), nil
}

func (i *Introspector) skipped(name string) bool {
	if name == models.LedgerTableName || strings.HasPrefix(name, drivers.RebuildTablePrefix) {
		return true
	}
	for _, s := range i.Skip {
		if s == name {
			return true
		}
	}
	return false
}

func wrap(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", models.ErrIntrospection, models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrIntrospection, err)
}

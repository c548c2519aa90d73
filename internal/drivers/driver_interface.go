package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// DatabaseDriver bundles everything dialect specific: connecting, mapping
// native types to logical ones and back, rendering DDL and reading the
// catalog.
type DatabaseDriver interface {
	Name() string
	Connect(connectionString string) (*gorm.DB, error)
	ConnectWithLogger(connectionString string, logLevel string) (*gorm.DB, error)
	GetSQLDB(db *gorm.DB) (*sql.DB, error)

	// SupportsTransactionalDDL reports whether DDL statements can be rolled
	// back together with the ledger write.
	SupportsTransactionalDDL() bool
	// RequiresForeignKeysOff reports whether migrations must run on a
	// connection with foreign key enforcement switched off, because table
	// rebuilds drop and recreate parent tables.
	RequiresForeignKeysOff() bool
	// IntrospectionConcurrency bounds the number of tables described in
	// parallel.
	IntrospectionConcurrency() int

	NormalizeType(dataType string) TypeInfo
	ColumnType(col *models.Column) string

	// RenderOperation turns one operation into statements. before and after
	// are the state of the affected table around the operation (nil for a
	// table that does not exist on that side).
	RenderOperation(op models.Operation, before, after *models.Table) ([]string, error)

	ListTables(ctx context.Context, db *gorm.DB) ([]string, error)
	DescribeTable(ctx context.Context, db *gorm.DB, table string) (*models.Table, error)
}

// TypeInfo is a native type reduced to its logical type plus metadata.
type TypeInfo struct {
	Type      models.LogicalType
	Size      int
	Precision int
	Scale     int
}

type ColumnInfo struct {
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimary    bool
	DefaultValue *string
	MaxLength    *int
}

// NewDriver returns the driver registered under name or one of its aliases.
func NewDriver(name string) (DatabaseDriver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return NewPostgreSQLDriver(), nil
	case "mysql", "mariadb":
		return NewMySQLDriver(), nil
	case "sqlite", "sqlite3":
		return NewSQLiteDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", name)
	}
}

var typeArgsRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*(?:unsigned)?\s*$`)

// splitTypeName splits "VARCHAR(255)" into ("varchar", 255, 0) and
// "DECIMAL(10,2)" into ("decimal", 10, 2).
func splitTypeName(dataType string) (base string, first, second int) {
	m := typeArgsRe.FindStringSubmatch(dataType)
	if m == nil {
		return strings.ToLower(strings.TrimSpace(dataType)), 0, 0
	}
	base = strings.ToLower(m[1])
	if m[2] != "" {
		first, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	return base, first, second
}

func quoteIdentList(names []string, quote func(string) string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// singleAutoIncrementPK returns the column that carries an inline
// auto-increment primary key, if the table has one.
func singleAutoIncrementPK(t *models.Table) *models.Column {
	pk := t.PrimaryKey()
	if pk == nil || len(pk.Columns) != 1 {
		return nil
	}
	col := t.Column(pk.Columns[0])
	if col == nil || !col.AutoIncrement || col.Type != models.TypeInteger {
		return nil
	}
	return col
}

// indexConstraints returns the unique and plain index constraints of a table,
// which every dialect renders as separate statements.
func indexConstraints(t *models.Table) []*models.Constraint {
	var out []*models.Constraint
	for _, c := range t.Constraints {
		if c.Kind == models.UniqueConstraint || c.Kind == models.IndexConstraint {
			out = append(out, c)
		}
	}
	return out
}

func unsupported(driver string, op models.Operation) error {
	return fmt.Errorf("%s driver cannot render operation %s", driver, op.Kind)
}

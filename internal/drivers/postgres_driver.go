package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

type PostgreSQLDriver struct{}

func NewPostgreSQLDriver() *PostgreSQLDriver {
	return &PostgreSQLDriver{}
}

func (p *PostgreSQLDriver) Name() string {
	return "postgres"
}

func (p *PostgreSQLDriver) Connect(connectionString string) (*gorm.DB, error) {
	return p.ConnectWithLogger(connectionString, "silent")
}

func (p *PostgreSQLDriver) ConnectWithLogger(connectionString string, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{
		Logger: newGormLogger(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	return db, nil
}

func (p *PostgreSQLDriver) GetSQLDB(db *gorm.DB) (*sql.DB, error) {
	return db.DB()
}

func (p *PostgreSQLDriver) SupportsTransactionalDDL() bool {
	return true
}

func (p *PostgreSQLDriver) RequiresForeignKeysOff() bool {
	return false
}

func (p *PostgreSQLDriver) IntrospectionConcurrency() int {
	return 4
}

func (p *PostgreSQLDriver) quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p *PostgreSQLDriver) NormalizeType(dataType string) TypeInfo {
	base, first, second := splitTypeName(dataType)
	switch base {
	case "smallint", "integer", "int", "int2", "int4", "serial", "smallserial":
		return TypeInfo{Type: models.TypeInteger}
	case "bigint", "int8", "bigserial":
		return TypeInfo{Type: models.TypeInteger, Size: 8}
	case "real", "double precision", "float4", "float8":
		return TypeInfo{Type: models.TypeFloat}
	case "numeric", "decimal":
		return TypeInfo{Type: models.TypeFloat, Precision: first, Scale: second}
	case "character varying", "varchar", "character", "char", "bpchar", "text", "citext", "json", "jsonb":
		return TypeInfo{Type: models.TypeString, Size: first}
	case "uuid":
		return TypeInfo{Type: models.TypeString, Size: 36}
	case "boolean", "bool":
		return TypeInfo{Type: models.TypeBoolean}
	case "date", "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone",
		"time", "time without time zone", "time with time zone", "interval":
		return TypeInfo{Type: models.TypeDateTime}
	case "bytea":
		return TypeInfo{Type: models.TypeBlob}
	}
	switch {
	case strings.HasPrefix(base, "timestamp"), strings.HasPrefix(base, "time"):
		return TypeInfo{Type: models.TypeDateTime}
	case strings.HasSuffix(base, "[]"):
		return TypeInfo{Type: models.TypeString}
	}
	return TypeInfo{Type: affinity(base)}
}

func (p *PostgreSQLDriver) ColumnType(col *models.Column) string {
	switch col.Type {
	case models.TypeInteger:
		if col.Size >= 8 {
			return "BIGINT"
		}
		return "INTEGER"
	case models.TypeFloat:
		if col.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", col.Precision, col.Scale)
		}
		return "DOUBLE PRECISION"
	case models.TypeString:
		if col.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Size)
		}
		return "TEXT"
	case models.TypeBoolean:
		return "BOOLEAN"
	case models.TypeDateTime:
		return "TIMESTAMP"
	default:
		return "BYTEA"
	}
}

var pgCastSuffix = regexp.MustCompile(`::[a-zA-Z_ ]+(\(\d+(,\d+)?\))?(\[\])?$`)

// normalizeDefault strips the type casts the catalog adds to literals
// ('x'::character varying) and drops sequence defaults.
func (p *PostgreSQLDriver) normalizeDefault(raw string) (value *string, identity bool) {
	if strings.HasPrefix(raw, "nextval(") {
		return nil, true
	}
	for pgCastSuffix.MatchString(raw) {
		raw = pgCastSuffix.ReplaceAllString(raw, "")
	}
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") && !strings.Contains(raw[1:len(raw)-1], "(") {
		raw = raw[1 : len(raw)-1]
	}
	return &raw, false
}

func (p *PostgreSQLDriver) columnDefinition(col *models.Column) string {
	def := p.quote(col.Name) + " " + p.ColumnType(col)
	if col.AutoIncrement && col.Type == models.TypeInteger {
		def += " GENERATED BY DEFAULT AS IDENTITY"
	} else if col.Default != nil {
		def += " DEFAULT " + *col.Default
	}
	if !col.Nullable {
		def += " NOT NULL"
	}
	return def
}

func (p *PostgreSQLDriver) constraintClause(table string, con *models.Constraint) string {
	name := p.quote(con.ConstraintName(table))
	cols := quoteIdentList(con.Columns, p.quote)
	switch con.Kind {
	case models.PrimaryKeyConstraint:
		return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", name, cols)
	case models.ForeignKeyConstraint:
		return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
			name, cols, p.quote(con.RefTable), quoteIdentList(con.RefColumns, p.quote), con.OnDelete.SQL(), con.OnUpdate.SQL())
	default:
		return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", name, cols)
	}
}

func (p *PostgreSQLDriver) RenderOperation(op models.Operation, before, after *models.Table) ([]string, error) {
	table := p.quote(op.Table)
	switch op.Kind {
	case models.AddTable:
		t := op.TableDef
		defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
		for _, col := range t.Columns {
			defs = append(defs, p.columnDefinition(col))
		}
		var indexes []string
		for _, con := range t.Constraints {
			if con.Kind == models.IndexConstraint {
				indexes = append(indexes, p.createIndex(t.Name, con))
				continue
			}
			defs = append(defs, p.constraintClause(t.Name, con))
		}
		return append([]string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))}, indexes...), nil

	case models.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", table)}, nil

	case models.RenameTable:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, p.quote(op.NewName))}, nil

	case models.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, p.columnDefinition(op.Column))}, nil

	case models.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, p.quote(op.Column.Name))}, nil

	case models.AlterColumn:
		return []string{p.alterColumn(op)}, nil

	case models.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, p.quote(op.OldName), p.quote(op.NewName))}, nil

	case models.AddConstraint:
		if op.Constraint.Kind == models.IndexConstraint {
			return []string{p.createIndex(op.Table, op.Constraint)}, nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", table, p.constraintClause(op.Table, op.Constraint))}, nil

	case models.DropConstraint:
		name := p.quote(op.Constraint.ConstraintName(op.Table))
		switch op.Constraint.Kind {
		case models.IndexConstraint:
			return []string{fmt.Sprintf("DROP INDEX %s", name)}, nil
		case models.UniqueConstraint:
			// Introspected unique keys may be plain unique indexes.
			return []string{
				fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", table, name),
				fmt.Sprintf("DROP INDEX IF EXISTS %s", name),
			}, nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, name)}, nil
	}
	return nil, unsupported(p.Name(), op)
}

// alterColumn folds every changed attribute into one ALTER TABLE.
func (p *PostgreSQLDriver) alterColumn(op models.Operation) string {
	col, from := op.Column, op.From
	name := p.quote(col.Name)
	var actions []string

	newType := p.ColumnType(col)
	if from == nil || p.ColumnType(from) != newType {
		actions = append(actions, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", name, newType, name, newType))
	}
	if from == nil || from.Nullable != col.Nullable {
		if col.Nullable {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", name))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", name))
		}
	}
	if from == nil || !sameDefault(from.Default, col.Default) {
		if col.Default == nil {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", name))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", name, *col.Default))
		}
	}
	if len(actions) == 0 {
		actions = append(actions, fmt.Sprintf("ALTER COLUMN %s TYPE %s", name, newType))
	}
	return fmt.Sprintf("ALTER TABLE %s %s", p.quote(op.Table), strings.Join(actions, ", "))
}

func sameDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (p *PostgreSQLDriver) createIndex(table string, con *models.Constraint) string {
	unique := ""
	if con.Kind == models.UniqueConstraint {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, p.quote(con.ConstraintName(table)), p.quote(table), quoteIdentList(con.Columns, p.quote))
}

func (p *PostgreSQLDriver) ListTables(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).Raw(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

type pgColumnRow struct {
	Name         string         `gorm:"column:name"`
	DataType     string         `gorm:"column:data_type"`
	IsNullable   bool           `gorm:"column:is_nullable"`
	DefaultValue sql.NullString `gorm:"column:default_value"`
	IsIdentity   bool           `gorm:"column:is_identity"`
}

type pgConstraintRow struct {
	Name       string `gorm:"column:name"`
	Kind       string `gorm:"column:kind"`
	Columns    string `gorm:"column:columns"`
	RefTable   string `gorm:"column:ref_table"`
	RefColumns string `gorm:"column:ref_columns"`
	OnDelete   string `gorm:"column:on_delete"`
	OnUpdate   string `gorm:"column:on_update"`
}

type pgIndexRow struct {
	Name     string `gorm:"column:name"`
	IsUnique bool   `gorm:"column:is_unique"`
	Columns  string `gorm:"column:columns"`
}

func (p *PostgreSQLDriver) DescribeTable(ctx context.Context, db *gorm.DB, table string) (*models.Table, error) {
	db = db.WithContext(ctx)
	t := &models.Table{Name: table, Columns: []*models.Column{}, Constraints: []*models.Constraint{}}

	var cols []pgColumnRow
	err := db.Raw(`
		SELECT a.attname AS name,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			NOT a.attnotnull AS is_nullable,
			pg_get_expr(d.adbin, d.adrelid) AS default_value,
			a.attidentity <> '' AS is_identity
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE c.relname = ? AND n.nspname = current_schema() AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, table).Scan(&cols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	for _, row := range cols {
		info := p.NormalizeType(row.DataType)
		col := &models.Column{
			Name:          row.Name,
			Type:          info.Type,
			Nullable:      row.IsNullable,
			Size:          info.Size,
			Precision:     info.Precision,
			Scale:         info.Scale,
			AutoIncrement: row.IsIdentity,
		}
		if row.DefaultValue.Valid {
			def, identity := p.normalizeDefault(row.DefaultValue.String)
			col.Default = def
			col.AutoIncrement = col.AutoIncrement || identity
		}
		t.Columns = append(t.Columns, col)
	}

	var cons []pgConstraintRow
	err = db.Raw(`
		SELECT con.conname AS name,
			con.contype AS kind,
			array_to_string(ARRAY(
				SELECT a.attname FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord), ',') AS columns,
			COALESCE(ref.relname, '') AS ref_table,
			COALESCE(array_to_string(ARRAY(
				SELECT a.attname FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord), ','), '') AS ref_columns,
			con.confdeltype AS on_delete,
			con.confupdtype AS on_update
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class ref ON ref.oid = con.confrelid
		WHERE c.relname = ? AND n.nspname = current_schema() AND con.contype IN ('p', 'f', 'u')
		ORDER BY con.contype DESC, con.conname`, table).Scan(&cons).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read constraints of %s: %w", table, err)
	}
	for _, row := range cons {
		con := &models.Constraint{Name: row.Name, Columns: strings.Split(row.Columns, ",")}
		switch row.Kind {
		case "p":
			con.Kind = models.PrimaryKeyConstraint
		case "f":
			con.Kind = models.ForeignKeyConstraint
			con.RefTable = row.RefTable
			con.RefColumns = strings.Split(row.RefColumns, ",")
			con.OnDelete = pgReferentialAction(row.OnDelete)
			con.OnUpdate = pgReferentialAction(row.OnUpdate)
		default:
			con.Kind = models.UniqueConstraint
		}
		t.Constraints = append(t.Constraints, con)
	}

	var idx []pgIndexRow
	err = db.Raw(`
		SELECT i.relname AS name,
			ix.indisunique AS is_unique,
			array_to_string(ARRAY(
				SELECT a.attname FROM unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = k.attnum
				ORDER BY k.ord), ',') AS columns
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class c ON c.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = ? AND n.nspname = current_schema()
			AND NOT EXISTS (SELECT 1 FROM pg_constraint con WHERE con.conindid = ix.indexrelid)
		ORDER BY i.relname`, table).Scan(&idx).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	for _, row := range idx {
		if row.Columns == "" {
			continue // expression index
		}
		con := &models.Constraint{Kind: models.IndexConstraint, Name: row.Name, Columns: strings.Split(row.Columns, ",")}
		if row.IsUnique {
			con.Kind = models.UniqueConstraint
		}
		t.Constraints = append(t.Constraints, con)
	}
	return t, nil
}

func pgReferentialAction(code string) models.ReferentialAction {
	switch code {
	case "c":
		return models.Cascade
	case "r":
		return models.Restrict
	case "n":
		return models.SetNull
	}
	return models.NoAction
}

package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// RebuildTablePrefix names the scratch table of a SQLite table rebuild.
const RebuildTablePrefix = "_gonmigrate_new_"

type SQLiteDriver struct{}

func NewSQLiteDriver() *SQLiteDriver {
	return &SQLiteDriver{}
}

func (s *SQLiteDriver) Name() string {
	return "sqlite"
}

func (s *SQLiteDriver) Connect(connectionString string) (*gorm.DB, error) {
	return s.ConnectWithLogger(connectionString, "silent")
}

// ConnectWithLogger opens the database with the pure Go modernc driver.
// In-memory databases are pinned to one connection, otherwise every pooled
// connection would see its own empty database.
func (s *SQLiteDriver) ConnectWithLogger(connectionString string, logLevel string) (*gorm.DB, error) {
	dsn := connectionString
	if !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: newGormLogger(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if strings.Contains(connectionString, ":memory:") || strings.Contains(connectionString, "mode=memory") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func (s *SQLiteDriver) GetSQLDB(db *gorm.DB) (*sql.DB, error) {
	return db.DB()
}

func (s *SQLiteDriver) SupportsTransactionalDDL() bool {
	return true
}

// RequiresForeignKeysOff: with enforcement on, DROP TABLE on a rebuilt
// parent fires the ON DELETE actions of its children.
func (s *SQLiteDriver) RequiresForeignKeysOff() bool {
	return true
}

func (s *SQLiteDriver) IntrospectionConcurrency() int {
	return 1
}

func (s *SQLiteDriver) quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLiteDriver) NormalizeType(dataType string) TypeInfo {
	base, first, second := splitTypeName(dataType)
	switch base {
	case "int", "integer", "bigint", "smallint", "tinyint", "mediumint", "int2", "int8":
		return TypeInfo{Type: models.TypeInteger}
	case "real", "double", "double precision", "float":
		return TypeInfo{Type: models.TypeFloat}
	case "numeric", "decimal":
		return TypeInfo{Type: models.TypeFloat, Precision: first, Scale: second}
	case "text", "varchar", "char", "nchar", "nvarchar", "character", "varying character", "native character", "clob":
		return TypeInfo{Type: models.TypeString, Size: first}
	case "boolean", "bool":
		return TypeInfo{Type: models.TypeBoolean}
	case "datetime", "timestamp", "date", "time":
		return TypeInfo{Type: models.TypeDateTime}
	case "blob", "":
		return TypeInfo{Type: models.TypeBlob}
	}
	return TypeInfo{Type: affinity(base)}
}

// affinity applies SQLite's column affinity rules to unknown type names.
func affinity(base string) models.LogicalType {
	upper := strings.ToUpper(base)
	switch {
	case strings.Contains(upper, "INT"):
		return models.TypeInteger
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "CLOB"), strings.Contains(upper, "TEXT"):
		return models.TypeString
	case strings.Contains(upper, "BLOB"):
		return models.TypeBlob
	case strings.Contains(upper, "BOOL"):
		return models.TypeBoolean
	case strings.Contains(upper, "DATE"), strings.Contains(upper, "TIME"):
		return models.TypeDateTime
	}
	return models.TypeFloat
}

func (s *SQLiteDriver) ColumnType(col *models.Column) string {
	switch col.Type {
	case models.TypeInteger:
		return "INTEGER"
	case models.TypeFloat:
		if col.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", col.Precision, col.Scale)
		}
		return "REAL"
	case models.TypeString:
		if col.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Size)
		}
		return "TEXT"
	case models.TypeBoolean:
		return "BOOLEAN"
	case models.TypeDateTime:
		return "DATETIME"
	default:
		return "BLOB"
	}
}

// castType is the storage class used when copying a column across a type
// change during a rebuild.
func (s *SQLiteDriver) castType(t models.LogicalType) string {
	switch t {
	case models.TypeInteger, models.TypeBoolean:
		return "INTEGER"
	case models.TypeFloat:
		return "REAL"
	case models.TypeBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (s *SQLiteDriver) columnDefinition(col *models.Column, inlinePK bool) string {
	def := s.quote(col.Name) + " " + s.ColumnType(col)
	if !col.Nullable {
		def += " NOT NULL"
	}
	if inlinePK {
		return def + " PRIMARY KEY AUTOINCREMENT"
	}
	if col.Default != nil {
		def += " DEFAULT " + *col.Default
	}
	return def
}

func (s *SQLiteDriver) foreignKeyClause(table string, fk *models.Constraint) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		s.quote(fk.ConstraintName(table)),
		quoteIdentList(fk.Columns, s.quote),
		s.quote(fk.RefTable),
		quoteIdentList(fk.RefColumns, s.quote),
		fk.OnDelete.SQL(),
		fk.OnUpdate.SQL(),
	)
}

// createTable renders t under the given physical name. Index names always
// derive from t.Name so a rebuilt table gets the same indexes back.
func (s *SQLiteDriver) createTable(t *models.Table, name string, withIndexes bool) []string {
	inlinePK := singleAutoIncrementPK(t)
	defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, col := range t.Columns {
		defs = append(defs, s.columnDefinition(col, col == inlinePK))
	}
	if pk := t.PrimaryKey(); pk != nil && inlinePK == nil {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			s.quote(pk.ConstraintName(t.Name)), quoteIdentList(pk.Columns, s.quote)))
	}
	for _, fk := range t.ForeignKeys() {
		defs = append(defs, s.foreignKeyClause(t.Name, fk))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", s.quote(name), strings.Join(defs, ",\n  "))}
	if withIndexes {
		for _, con := range indexConstraints(t) {
			stmts = append(stmts, s.createIndex(t.Name, con))
		}
	}
	return stmts
}

func (s *SQLiteDriver) createIndex(table string, con *models.Constraint) string {
	unique := ""
	if con.Kind == models.UniqueConstraint {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, s.quote(con.ConstraintName(table)), s.quote(table), quoteIdentList(con.Columns, s.quote))
}

// rebuild recreates a table in its after state and copies the rows over.
// SQLite has no ALTER for column definitions, primary keys or foreign keys.
func (s *SQLiteDriver) rebuild(before, after *models.Table) ([]string, error) {
	if before == nil || after == nil {
		return nil, fmt.Errorf("sqlite rebuild needs both table states")
	}
	tmp := RebuildTablePrefix + after.Name
	stmts := s.createTable(after, tmp, false)

	var targets, sources []string
	for _, col := range after.Columns {
		src := before.Column(col.Name)
		if src == nil {
			continue
		}
		expr := s.quote(col.Name)
		if src.Type != col.Type {
			expr = fmt.Sprintf("CAST(%s AS %s)", expr, s.castType(col.Type))
		}
		if src.Nullable && !col.Nullable && col.Default != nil {
			expr = fmt.Sprintf("COALESCE(%s, %s)", expr, *col.Default)
		}
		targets = append(targets, s.quote(col.Name))
		sources = append(sources, expr)
	}
	if len(targets) > 0 {
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			s.quote(tmp), strings.Join(targets, ", "), strings.Join(sources, ", "), s.quote(before.Name)))
	}

	stmts = append(stmts,
		fmt.Sprintf("DROP TABLE %s", s.quote(before.Name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", s.quote(tmp), s.quote(after.Name)),
	)
	for _, con := range indexConstraints(after) {
		stmts = append(stmts, s.createIndex(after.Name, con))
	}
	return stmts, nil
}

func (s *SQLiteDriver) RenderOperation(op models.Operation, before, after *models.Table) ([]string, error) {
	switch op.Kind {
	case models.AddTable:
		return s.createTable(op.TableDef, op.Table, true), nil

	case models.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", s.quote(op.Table))}, nil

	case models.RenameTable:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", s.quote(op.Table), s.quote(op.NewName))}, nil

	case models.AddColumn:
		// SQLite refuses ADD COLUMN ... NOT NULL without a default.
		if !op.Column.Nullable && op.Column.Default == nil {
			return s.rebuild(before, after)
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", s.quote(op.Table), s.columnDefinition(op.Column, false))}, nil

	case models.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", s.quote(op.Table), s.quote(op.Column.Name))}, nil

	case models.AlterColumn:
		return s.rebuild(before, after)

	case models.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			s.quote(op.Table), s.quote(op.OldName), s.quote(op.NewName))}, nil

	case models.AddConstraint:
		switch op.Constraint.Kind {
		case models.UniqueConstraint, models.IndexConstraint:
			return []string{s.createIndex(op.Table, op.Constraint)}, nil
		}
		return s.rebuild(before, after)

	case models.DropConstraint:
		switch op.Constraint.Kind {
		case models.UniqueConstraint, models.IndexConstraint:
			return []string{fmt.Sprintf("DROP INDEX %s", s.quote(op.Constraint.ConstraintName(op.Table)))}, nil
		}
		return s.rebuild(before, after)
	}
	return nil, unsupported(s.Name(), op)
}

func (s *SQLiteDriver) ListTables(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).
		Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`).
		Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

type sqliteColumnRow struct {
	Cid       int            `gorm:"column:cid"`
	Name      string         `gorm:"column:name"`
	Type      string         `gorm:"column:type"`
	NotNull   int            `gorm:"column:notnull"`
	DfltValue sql.NullString `gorm:"column:dflt_value"`
	Pk        int            `gorm:"column:pk"`
}

type sqliteForeignKeyRow struct {
	ID       int            `gorm:"column:id"`
	Seq      int            `gorm:"column:seq"`
	Table    string         `gorm:"column:table"`
	From     string         `gorm:"column:from"`
	To       sql.NullString `gorm:"column:to"`
	OnUpdate string         `gorm:"column:on_update"`
	OnDelete string         `gorm:"column:on_delete"`
}

type sqliteIndexRow struct {
	Seq    int    `gorm:"column:seq"`
	Name   string `gorm:"column:name"`
	Unique int    `gorm:"column:unique"`
	Origin string `gorm:"column:origin"`
}

func (s *SQLiteDriver) DescribeTable(ctx context.Context, db *gorm.DB, table string) (*models.Table, error) {
	db = db.WithContext(ctx)
	t := &models.Table{Name: table, Columns: []*models.Column{}, Constraints: []*models.Constraint{}}

	var createSQL string
	if err := db.Raw(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&createSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to read definition of %s: %w", table, err)
	}
	autoIncrement := strings.Contains(strings.ToUpper(createSQL), "AUTOINCREMENT")

	var cols []sqliteColumnRow
	if err := db.Raw(`SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table).Scan(&cols).Error; err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var pkCols []sqliteColumnRow
	for _, row := range cols {
		info := s.NormalizeType(row.Type)
		col := &models.Column{
			Name:      row.Name,
			Type:      info.Type,
			Nullable:  row.NotNull == 0 && row.Pk == 0,
			Size:      info.Size,
			Precision: info.Precision,
			Scale:     info.Scale,
		}
		if row.DfltValue.Valid {
			d := row.DfltValue.String
			col.Default = &d
		}
		t.Columns = append(t.Columns, col)
		if row.Pk > 0 {
			pkCols = append(pkCols, row)
		}
	}

	if len(pkCols) > 0 {
		sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].Pk < pkCols[j].Pk })
		pk := &models.Constraint{Kind: models.PrimaryKeyConstraint}
		for _, row := range pkCols {
			pk.Columns = append(pk.Columns, row.Name)
		}
		t.Constraints = append(t.Constraints, pk)
		if len(pk.Columns) == 1 && autoIncrement {
			if col := t.Column(pk.Columns[0]); col.Type == models.TypeInteger {
				col.AutoIncrement = true
			}
		}
	}

	fks, err := s.foreignKeys(db, table)
	if err != nil {
		return nil, err
	}
	t.Constraints = append(t.Constraints, fks...)

	indexes, err := s.indexes(db, table)
	if err != nil {
		return nil, err
	}
	t.Constraints = append(t.Constraints, indexes...)
	return t, nil
}

func (s *SQLiteDriver) foreignKeys(db *gorm.DB, table string) ([]*models.Constraint, error) {
	var rows []sqliteForeignKeyRow
	err := db.Raw(`SELECT id, seq, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}

	byID := make(map[int]*models.Constraint)
	var ids []int
	for _, row := range rows {
		fk, ok := byID[row.ID]
		if !ok {
			onDelete, _ := models.ParseReferentialAction(row.OnDelete)
			onUpdate, _ := models.ParseReferentialAction(row.OnUpdate)
			fk = &models.Constraint{
				Kind:     models.ForeignKeyConstraint,
				RefTable: row.Table,
				OnDelete: onDelete,
				OnUpdate: onUpdate,
			}
			byID[row.ID] = fk
			ids = append(ids, row.ID)
		}
		fk.Columns = append(fk.Columns, row.From)
		fk.RefColumns = append(fk.RefColumns, row.To.String)
	}

	out := make([]*models.Constraint, 0, len(ids))
	for _, id := range ids {
		fk := byID[id]
		// REFERENCES parent without a column list targets the parent's key.
		if len(fk.RefColumns) > 0 && fk.RefColumns[0] == "" {
			var pk []string
			if err := db.Raw(`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, fk.RefTable).Scan(&pk).Error; err != nil {
				return nil, fmt.Errorf("failed to resolve foreign key target %s: %w", fk.RefTable, err)
			}
			fk.RefColumns = pk
		}
		out = append(out, fk)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *SQLiteDriver) indexes(db *gorm.DB, table string) ([]*models.Constraint, error) {
	var rows []sqliteIndexRow
	if err := db.Raw(`SELECT seq, name, "unique", origin FROM pragma_index_list(?)`, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	var out []*models.Constraint
	for _, row := range rows {
		if row.Origin == "pk" {
			continue
		}
		var cols []string
		if err := db.Raw(`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, row.Name).Scan(&cols).Error; err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", row.Name, err)
		}
		con := &models.Constraint{Kind: models.IndexConstraint, Name: row.Name, Columns: cols}
		if row.Unique == 1 {
			con.Kind = models.UniqueConstraint
		}
		// Auto-indexes of inline UNIQUE clauses carry reserved names.
		if row.Origin == "u" {
			con.Name = ""
		}
		out = append(out, con)
	}
	return out, nil
}

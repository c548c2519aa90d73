package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// MySQLDriver renders MySQL 8 DDL. MySQL commits implicitly around DDL, so
// migrations run outside a transaction on this driver.
type MySQLDriver struct{}

func NewMySQLDriver() *MySQLDriver {
	return &MySQLDriver{}
}

func (m *MySQLDriver) Name() string {
	return "mysql"
}

func (m *MySQLDriver) Connect(connectionString string) (*gorm.DB, error) {
	return m.ConnectWithLogger(connectionString, "silent")
}

func (m *MySQLDriver) ConnectWithLogger(connectionString string, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(connectionString), &gorm.Config{
		Logger: newGormLogger(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	return db, nil
}

func (m *MySQLDriver) GetSQLDB(db *gorm.DB) (*sql.DB, error) {
	return db.DB()
}

func (m *MySQLDriver) SupportsTransactionalDDL() bool {
	return false
}

func (m *MySQLDriver) RequiresForeignKeysOff() bool {
	return false
}

func (m *MySQLDriver) IntrospectionConcurrency() int {
	return 4
}

func (m *MySQLDriver) quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (m *MySQLDriver) NormalizeType(dataType string) TypeInfo {
	base, first, second := splitTypeName(dataType)
	switch base {
	case "tinyint":
		if first == 1 {
			return TypeInfo{Type: models.TypeBoolean}
		}
		return TypeInfo{Type: models.TypeInteger}
	case "bool", "boolean":
		return TypeInfo{Type: models.TypeBoolean}
	case "smallint", "mediumint", "int", "integer":
		return TypeInfo{Type: models.TypeInteger}
	case "bigint":
		return TypeInfo{Type: models.TypeInteger, Size: 8}
	case "float", "double", "real":
		return TypeInfo{Type: models.TypeFloat}
	case "decimal", "numeric":
		return TypeInfo{Type: models.TypeFloat, Precision: first, Scale: second}
	case "varchar", "char":
		return TypeInfo{Type: models.TypeString, Size: first}
	case "text", "tinytext", "mediumtext", "longtext", "json", "enum", "set":
		return TypeInfo{Type: models.TypeString}
	case "datetime", "timestamp", "date", "time", "year":
		return TypeInfo{Type: models.TypeDateTime}
	case "blob", "tinyblob", "mediumblob", "longblob", "binary", "varbinary":
		return TypeInfo{Type: models.TypeBlob}
	}
	return TypeInfo{Type: affinity(base)}
}

func (m *MySQLDriver) ColumnType(col *models.Column) string {
	switch col.Type {
	case models.TypeInteger:
		if col.Size >= 8 {
			return "BIGINT"
		}
		return "INT"
	case models.TypeFloat:
		if col.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", col.Precision, col.Scale)
		}
		return "DOUBLE"
	case models.TypeString:
		if col.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Size)
		}
		return "TEXT"
	case models.TypeBoolean:
		return "TINYINT(1)"
	case models.TypeDateTime:
		return "DATETIME"
	default:
		return "LONGBLOB"
	}
}

func (m *MySQLDriver) columnDefinition(col *models.Column) string {
	def := m.quote(col.Name) + " " + m.ColumnType(col)
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.AutoIncrement && col.Type == models.TypeInteger {
		return def + " AUTO_INCREMENT"
	}
	if col.Default != nil {
		def += " DEFAULT " + *col.Default
	}
	return def
}

func (m *MySQLDriver) foreignKeyClause(table string, fk *models.Constraint) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		m.quote(fk.ConstraintName(table)),
		quoteIdentList(fk.Columns, m.quote),
		m.quote(fk.RefTable),
		quoteIdentList(fk.RefColumns, m.quote),
		fk.OnDelete.SQL(),
		fk.OnUpdate.SQL(),
	)
}

func (m *MySQLDriver) createIndex(table string, con *models.Constraint) string {
	unique := ""
	if con.Kind == models.UniqueConstraint {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, m.quote(con.ConstraintName(table)), m.quote(table), quoteIdentList(con.Columns, m.quote))
}

func (m *MySQLDriver) RenderOperation(op models.Operation, before, after *models.Table) ([]string, error) {
	table := m.quote(op.Table)
	switch op.Kind {
	case models.AddTable:
		t := op.TableDef
		defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
		for _, col := range t.Columns {
			defs = append(defs, m.columnDefinition(col))
		}
		if pk := t.PrimaryKey(); pk != nil {
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdentList(pk.Columns, m.quote)))
		}
		for _, fk := range t.ForeignKeys() {
			defs = append(defs, m.foreignKeyClause(t.Name, fk))
		}
		stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))}
		for _, con := range indexConstraints(t) {
			stmts = append(stmts, m.createIndex(t.Name, con))
		}
		return stmts, nil

	case models.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", table)}, nil

	case models.RenameTable:
		return []string{fmt.Sprintf("RENAME TABLE %s TO %s", table, m.quote(op.NewName))}, nil

	case models.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, m.columnDefinition(op.Column))}, nil

	case models.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, m.quote(op.Column.Name))}, nil

	case models.AlterColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, m.columnDefinition(op.Column))}, nil

	case models.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, m.quote(op.OldName), m.quote(op.NewName))}, nil

	case models.AddConstraint:
		con := op.Constraint
		switch con.Kind {
		case models.PrimaryKeyConstraint:
			return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", table, quoteIdentList(con.Columns, m.quote))}, nil
		case models.ForeignKeyConstraint:
			return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", table, m.foreignKeyClause(op.Table, con))}, nil
		}
		return []string{m.createIndex(op.Table, con)}, nil

	case models.DropConstraint:
		con := op.Constraint
		switch con.Kind {
		case models.PrimaryKeyConstraint:
			return []string{fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", table)}, nil
		case models.ForeignKeyConstraint:
			return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, m.quote(con.ConstraintName(op.Table)))}, nil
		}
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", m.quote(con.ConstraintName(op.Table)), table)}, nil
	}
	return nil, unsupported(m.Name(), op)
}

func (m *MySQLDriver) ListTables(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).Raw(`
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

type mysqlColumnRow struct {
	Name         string         `gorm:"column:name"`
	DataType     string         `gorm:"column:data_type"`
	IsNullable   string         `gorm:"column:is_nullable"`
	DefaultValue sql.NullString `gorm:"column:default_value"`
	Extra        string         `gorm:"column:extra"`
}

type mysqlIndexRow struct {
	Name       string `gorm:"column:name"`
	NonUnique  int    `gorm:"column:non_unique"`
	ColumnName string `gorm:"column:column_name"`
}

type mysqlForeignKeyRow struct {
	Name       string `gorm:"column:name"`
	ColumnName string `gorm:"column:column_name"`
	RefTable   string `gorm:"column:ref_table"`
	RefColumn  string `gorm:"column:ref_column"`
	OnDelete   string `gorm:"column:on_delete"`
	OnUpdate   string `gorm:"column:on_update"`
}

func (m *MySQLDriver) DescribeTable(ctx context.Context, db *gorm.DB, table string) (*models.Table, error) {
	db = db.WithContext(ctx)
	t := &models.Table{Name: table, Columns: []*models.Column{}, Constraints: []*models.Constraint{}}

	var cols []mysqlColumnRow
	err := db.Raw(`
		SELECT COLUMN_NAME AS name, COLUMN_TYPE AS data_type, IS_NULLABLE AS is_nullable,
			COLUMN_DEFAULT AS default_value, EXTRA AS extra
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table).Scan(&cols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	for _, row := range cols {
		info := m.NormalizeType(row.DataType)
		extra := strings.ToUpper(row.Extra)
		col := &models.Column{
			Name:          row.Name,
			Type:          info.Type,
			Nullable:      row.IsNullable == "YES",
			Size:          info.Size,
			Precision:     info.Precision,
			Scale:         info.Scale,
			AutoIncrement: strings.Contains(extra, "AUTO_INCREMENT"),
		}
		if row.DefaultValue.Valid {
			d := row.DefaultValue.String
			// Literal defaults come back unquoted.
			generated := strings.Contains(extra, "DEFAULT_GENERATED") || strings.HasPrefix(strings.ToUpper(d), "CURRENT_TIMESTAMP")
			if !generated && (info.Type == models.TypeString || info.Type == models.TypeDateTime) {
				d = "'" + strings.ReplaceAll(d, "'", "''") + "'"
			}
			col.Default = &d
		}
		t.Columns = append(t.Columns, col)
	}

	var fkRows []mysqlForeignKeyRow
	err = db.Raw(`
		SELECT k.CONSTRAINT_NAME AS name, k.COLUMN_NAME AS column_name,
			k.REFERENCED_TABLE_NAME AS ref_table, k.REFERENCED_COLUMN_NAME AS ref_column,
			r.DELETE_RULE AS on_delete, r.UPDATE_RULE AS on_update
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS r
			ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME AND r.TABLE_NAME = k.TABLE_NAME
		WHERE k.TABLE_SCHEMA = DATABASE() AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, table).Scan(&fkRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	fkNames := make(map[string]bool)
	var fks []*models.Constraint
	for _, row := range fkRows {
		if !fkNames[row.Name] {
			onDelete, _ := models.ParseReferentialAction(row.OnDelete)
			onUpdate, _ := models.ParseReferentialAction(row.OnUpdate)
			fks = append(fks, &models.Constraint{
				Kind:     models.ForeignKeyConstraint,
				Name:     row.Name,
				RefTable: row.RefTable,
				OnDelete: onDelete,
				OnUpdate: onUpdate,
			})
			fkNames[row.Name] = true
		}
		fk := fks[len(fks)-1]
		fk.Columns = append(fk.Columns, row.ColumnName)
		fk.RefColumns = append(fk.RefColumns, row.RefColumn)
	}

	var idxRows []mysqlIndexRow
	err = db.Raw(`
		SELECT INDEX_NAME AS name, NON_UNIQUE AS non_unique, COLUMN_NAME AS column_name
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY INDEX_NAME = 'PRIMARY' DESC, INDEX_NAME, SEQ_IN_INDEX`, table).Scan(&idxRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	var current *models.Constraint
	for _, row := range idxRows {
		// MySQL backs every foreign key with an index of the same name.
		if fkNames[row.Name] {
			continue
		}
		if current == nil || current.Name != row.Name {
			current = &models.Constraint{Kind: models.IndexConstraint, Name: row.Name}
			switch {
			case row.Name == "PRIMARY":
				current.Kind = models.PrimaryKeyConstraint
			case row.NonUnique == 0:
				current.Kind = models.UniqueConstraint
			}
			t.Constraints = append(t.Constraints, current)
		}
		current.Columns = append(current.Columns, row.ColumnName)
	}
	if pk := t.PrimaryKey(); pk != nil {
		pk.Name = ""
	}

	t.Constraints = append(t.Constraints, fks...)
	return t, nil
}

package models

import (
	"fmt"
	"strings"
)

// LogicalType is the dialect independent type of a column.
type LogicalType string

const (
	TypeInteger  LogicalType = "integer"
	TypeFloat    LogicalType = "float"
	TypeString   LogicalType = "string"
	TypeBoolean  LogicalType = "boolean"
	TypeDateTime LogicalType = "datetime"
	TypeBlob     LogicalType = "blob"
)

var logicalTypes = []LogicalType{TypeInteger, TypeFloat, TypeString, TypeBoolean, TypeDateTime, TypeBlob}

// Valid reports whether t belongs to the closed set of logical types.
func (t LogicalType) Valid() bool {
	for _, lt := range logicalTypes {
		if lt == t {
			return true
		}
	}
	return false
}

// ParseLogicalType accepts the canonical names plus a few common aliases
// ("int", "number", "text", "bool", "timestamp", "bytes").
func ParseLogicalType(s string) (LogicalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "bigint":
		return TypeInteger, nil
	case "float", "double", "real", "number", "decimal":
		return TypeFloat, nil
	case "string", "text", "varchar":
		return TypeString, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "datetime", "timestamp", "date", "time":
		return TypeDateTime, nil
	case "blob", "bytes", "binary":
		return TypeBlob, nil
	}
	return "", fmt.Errorf("%w: unknown logical type %q", ErrInvalidSchema, s)
}

type ConstraintKind string

const (
	PrimaryKeyConstraint ConstraintKind = "primary_key"
	ForeignKeyConstraint ConstraintKind = "foreign_key"
	UniqueConstraint     ConstraintKind = "unique"
	IndexConstraint      ConstraintKind = "index"
)

// ReferentialAction is the on-delete / on-update policy of a foreign key.
type ReferentialAction string

const (
	Cascade  ReferentialAction = "cascade"
	Restrict ReferentialAction = "restrict"
	SetNull  ReferentialAction = "set_null"
	NoAction ReferentialAction = "no_action"
)

// ParseReferentialAction normalises both the SQL spelling ("SET NULL") and the
// tag spelling ("set_null"). An empty string means no action.
func ParseReferentialAction(s string) (ReferentialAction, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "", "no_action":
		return NoAction, nil
	case "cascade":
		return Cascade, nil
	case "restrict":
		return Restrict, nil
	case "set_null":
		return SetNull, nil
	}
	return "", fmt.Errorf("%w: unknown referential action %q", ErrInvalidSchema, s)
}

// OrDefault maps the zero value to NoAction.
func (a ReferentialAction) OrDefault() ReferentialAction {
	if a == "" {
		return NoAction
	}
	return a
}

// SQL renders the action the way every supported dialect spells it.
func (a ReferentialAction) SQL() string {
	return strings.ToUpper(strings.ReplaceAll(string(a.OrDefault()), "_", " "))
}

type Schema struct {
	Tables []*Table `json:"tables" yaml:"tables"`
}

type Table struct {
	Name        string        `json:"name" yaml:"name"`
	Columns     []*Column     `json:"columns" yaml:"columns"`
	Constraints []*Constraint `json:"constraints" yaml:"constraints"`
}

type Column struct {
	Name          string      `json:"name" yaml:"name"`
	Type          LogicalType `json:"type" yaml:"type"`
	Nullable      bool        `json:"nullable" yaml:"nullable"`
	Default       *string     `json:"default" yaml:"default,omitempty"`
	Size          int         `json:"size,omitempty" yaml:"size,omitempty"`
	Precision     int         `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale         int         `json:"scale,omitempty" yaml:"scale,omitempty"`
	AutoIncrement bool        `json:"auto_increment,omitempty" yaml:"auto_increment,omitempty"`

	// OldName is a rename hint coming from entity metadata. It never reaches
	// a snapshot.
	OldName string `json:"-" yaml:"old_name,omitempty"`
}

type Constraint struct {
	Kind       ConstraintKind    `json:"kind" yaml:"kind"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Columns    []string          `json:"columns" yaml:"columns"`
	RefTable   string            `json:"ref_table,omitempty" yaml:"ref_table,omitempty"`
	RefColumns []string          `json:"ref_columns,omitempty" yaml:"ref_columns,omitempty"`
	OnDelete   ReferentialAction `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
	OnUpdate   ReferentialAction `json:"on_update,omitempty" yaml:"on_update,omitempty"`
}

func NewSchema(tables ...*Table) *Schema {
	if tables == nil {
		tables = []*Table{}
	}
	return &Schema{Tables: tables}
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	if s == nil {
		return nil
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

func (s *Schema) IsEmpty() bool {
	return s == nil || len(s.Tables) == 0
}

func (s *Schema) Clone() *Schema {
	if s == nil {
		return NewSchema()
	}
	out := &Schema{}
	if s.Tables != nil {
		out.Tables = make([]*Table, 0, len(s.Tables))
	}
	for _, t := range s.Tables {
		out.Tables = append(out.Tables, t.Clone())
	}
	return out
}

// Validate checks the structural invariants of the schema: unique table and
// column names, known logical types, primary keys and indexes over existing
// columns, and foreign keys that target a primary key or unique constraint.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: table without name", ErrInvalidSchema)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate table %q", ErrInvalidSchema, t.Name)
		}
		seen[t.Name] = true
		if err := t.validate(); err != nil {
			return err
		}
	}

	for _, t := range s.Tables {
		for _, fk := range t.ForeignKeys() {
			target := s.Table(fk.RefTable)
			if target == nil {
				return fmt.Errorf("%w: foreign key %s.(%s) references unknown table %q",
					ErrInvalidSchema, t.Name, strings.Join(fk.Columns, ","), fk.RefTable)
			}
			for _, c := range fk.RefColumns {
				if target.Column(c) == nil {
					return fmt.Errorf("%w: foreign key %s.(%s) references unknown column %s.%s",
						ErrInvalidSchema, t.Name, strings.Join(fk.Columns, ","), fk.RefTable, c)
				}
			}
			if !target.isKey(fk.RefColumns) {
				return fmt.Errorf("%w: foreign key %s.(%s) must reference a primary key or unique columns of %q",
					ErrInvalidSchema, t.Name, strings.Join(fk.Columns, ","), fk.RefTable)
			}
		}
	}
	return nil
}

func (t *Table) validate() error {
	cols := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: column without name in table %q", ErrInvalidSchema, t.Name)
		}
		if cols[c.Name] {
			return fmt.Errorf("%w: duplicate column %s.%s", ErrInvalidSchema, t.Name, c.Name)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: column %s.%s has unknown type %q", ErrInvalidSchema, t.Name, c.Name, c.Type)
		}
		cols[c.Name] = true
	}

	pks := 0
	for _, con := range t.Constraints {
		if len(con.Columns) == 0 {
			return fmt.Errorf("%w: %s constraint on %q has no columns", ErrInvalidSchema, con.Kind, t.Name)
		}
		for _, c := range con.Columns {
			if !cols[c] {
				return fmt.Errorf("%w: %s constraint on %q references unknown column %q", ErrInvalidSchema, con.Kind, t.Name, c)
			}
		}
		switch con.Kind {
		case PrimaryKeyConstraint:
			pks++
		case ForeignKeyConstraint:
			if con.RefTable == "" || len(con.RefColumns) != len(con.Columns) {
				return fmt.Errorf("%w: malformed foreign key on %q", ErrInvalidSchema, t.Name)
			}
		case UniqueConstraint, IndexConstraint:
		default:
			return fmt.Errorf("%w: unknown constraint kind %q on %q", ErrInvalidSchema, con.Kind, t.Name)
		}
	}
	if pks > 1 {
		return fmt.Errorf("%w: table %q has more than one primary key", ErrInvalidSchema, t.Name)
	}
	return nil
}

func (t *Table) Column(name string) *Column {
	if i := t.ColumnIndex(name); i >= 0 {
		return t.Columns[i]
	}
	return nil
}

func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) PrimaryKey() *Constraint {
	for _, c := range t.Constraints {
		if c.Kind == PrimaryKeyConstraint {
			return c
		}
	}
	return nil
}

func (t *Table) ForeignKeys() []*Constraint {
	var fks []*Constraint
	for _, c := range t.Constraints {
		if c.Kind == ForeignKeyConstraint {
			fks = append(fks, c)
		}
	}
	return fks
}

// Constraint finds a constraint structurally equal to con.
func (t *Table) Constraint(con *Constraint) *Constraint {
	key := con.Key()
	for _, c := range t.Constraints {
		if c.Key() == key {
			return c
		}
	}
	return nil
}

func (t *Table) isKey(cols []string) bool {
	want := strings.Join(cols, ",")
	for _, c := range t.Constraints {
		if (c.Kind == PrimaryKeyConstraint || c.Kind == UniqueConstraint) && strings.Join(c.Columns, ",") == want {
			return true
		}
	}
	return false
}

func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name}
	if t.Columns != nil {
		out.Columns = make([]*Column, 0, len(t.Columns))
	}
	if t.Constraints != nil {
		out.Constraints = make([]*Constraint, 0, len(t.Constraints))
	}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, c.Clone())
	}
	for _, c := range t.Constraints {
		out.Constraints = append(out.Constraints, c.Clone())
	}
	return out
}

func (c *Column) Clone() *Column {
	out := *c
	if c.Default != nil {
		d := *c.Default
		out.Default = &d
	}
	return &out
}

// Equal compares the attributes that require an ALTER: logical type,
// nullability and default. Size and precision only count when compareSizes
// is set.
func (c *Column) Equal(other *Column, compareSizes bool) bool {
	if c.Type != other.Type || c.Nullable != other.Nullable {
		return false
	}
	if (c.Default == nil) != (other.Default == nil) {
		return false
	}
	if c.Default != nil && *c.Default != *other.Default {
		return false
	}
	if compareSizes && (c.Size != other.Size || c.Precision != other.Precision || c.Scale != other.Scale) {
		return false
	}
	return true
}

func (c *Constraint) Clone() *Constraint {
	out := *c
	out.Columns = cloneStrings(c.Columns)
	out.RefColumns = cloneStrings(c.RefColumns)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Key is the structural identity of a constraint. Names are not part of it:
// two foreign keys are the same only when columns, target and policies match.
func (c *Constraint) Key() string {
	key := string(c.Kind) + "(" + strings.Join(c.Columns, ",") + ")"
	if c.Kind == ForeignKeyConstraint {
		key += "->" + c.RefTable + "(" + strings.Join(c.RefColumns, ",") + ")" +
			" del:" + string(c.OnDelete.OrDefault()) + " upd:" + string(c.OnUpdate.OrDefault())
	}
	return key
}

func (c *Constraint) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// ConstraintName returns the explicit name or a deterministic one derived
// from the table and columns.
func (c *Constraint) ConstraintName(table string) string {
	if c.Name != "" {
		return c.Name
	}
	var prefix string
	switch c.Kind {
	case PrimaryKeyConstraint:
		return "pk_" + table
	case ForeignKeyConstraint:
		prefix = "fk"
	case UniqueConstraint:
		prefix = "uq"
	default:
		prefix = "idx"
	}
	name := prefix + "_" + table + "_" + strings.Join(c.Columns, "_")
	if c.Kind == ForeignKeyConstraint {
		name += "_" + c.RefTable
	}
	return name
}

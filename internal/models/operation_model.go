package models

import (
	"fmt"
)

type OperationKind string

const (
	AddTable       OperationKind = "add_table"
	DropTable      OperationKind = "drop_table"
	RenameTable    OperationKind = "rename_table"
	AddColumn      OperationKind = "add_column"
	DropColumn     OperationKind = "drop_column"
	AlterColumn    OperationKind = "alter_column"
	RenameColumn   OperationKind = "rename_column"
	AddConstraint  OperationKind = "add_constraint"
	DropConstraint OperationKind = "drop_constraint"
)

// Operation is one structural change. Which fields are set depends on Kind:
//
//	AddTable, DropTable       TableDef
//	AddColumn, DropColumn     Column
//	AlterColumn               Column (new), From (old)
//	AddConstraint, DropConstraint  Constraint
//	RenameTable               Table (old), NewName
//	RenameColumn              OldName, NewName
type Operation struct {
	Kind       OperationKind `json:"kind" yaml:"kind"`
	Table      string        `json:"table" yaml:"table"`
	TableDef   *Table        `json:"table_def,omitempty" yaml:"table_def,omitempty"`
	Column     *Column       `json:"column,omitempty" yaml:"column,omitempty"`
	From       *Column       `json:"from,omitempty" yaml:"from,omitempty"`
	Constraint *Constraint   `json:"constraint,omitempty" yaml:"constraint,omitempty"`
	OldName    string        `json:"old_name,omitempty" yaml:"old_name,omitempty"`
	NewName    string        `json:"new_name,omitempty" yaml:"new_name,omitempty"`
}

// Diff is the ordered list of operations turning one schema into another.
type Diff struct {
	Operations []Operation `json:"operations"`
}

func (d *Diff) IsEmpty() bool {
	return d == nil || len(d.Operations) == 0
}

// Invert returns the structural inverse of the operation.
func (op Operation) Invert() Operation {
	inv := op
	switch op.Kind {
	case AddTable:
		inv.Kind = DropTable
	case DropTable:
		inv.Kind = AddTable
	case AddColumn:
		inv.Kind = DropColumn
	case DropColumn:
		inv.Kind = AddColumn
	case AlterColumn:
		inv.Column, inv.From = op.From, op.Column
	case AddConstraint:
		inv.Kind = DropConstraint
	case DropConstraint:
		inv.Kind = AddConstraint
	case RenameTable:
		inv.Table, inv.NewName = op.NewName, op.Table
	case RenameColumn:
		inv.OldName, inv.NewName = op.NewName, op.OldName
	}
	return inv
}

// Inverse returns the inverse operations in reverse order.
func (d *Diff) Inverse() *Diff {
	out := &Diff{Operations: make([]Operation, 0, len(d.Operations))}
	for i := len(d.Operations) - 1; i >= 0; i-- {
		out.Operations = append(out.Operations, d.Operations[i].Invert())
	}
	return out
}

func (op Operation) String() string {
	switch op.Kind {
	case AddTable, DropTable:
		return fmt.Sprintf("%s %s", op.Kind, op.Table)
	case AddColumn, DropColumn:
		return fmt.Sprintf("%s %s.%s", op.Kind, op.Table, op.Column.Name)
	case AlterColumn:
		return fmt.Sprintf("%s %s.%s (%s -> %s)", op.Kind, op.Table, op.Column.Name, op.From.Type, op.Column.Type)
	case AddConstraint, DropConstraint:
		return fmt.Sprintf("%s %s %s", op.Kind, op.Table, op.Constraint.Key())
	case RenameTable:
		return fmt.Sprintf("%s %s -> %s", op.Kind, op.Table, op.NewName)
	case RenameColumn:
		return fmt.Sprintf("%s %s.%s -> %s", op.Kind, op.Table, op.OldName, op.NewName)
	}
	return string(op.Kind)
}

// Apply mutates the schema by one operation. It refuses operations that do
// not fit the current state, which is how ordering mistakes surface.
func (s *Schema) Apply(op Operation) error {
	if op.Kind == AddTable {
		if s.Table(op.Table) != nil {
			return fmt.Errorf("%w: table %q already exists", ErrInvalidSchema, op.Table)
		}
		s.Tables = append(s.Tables, op.TableDef.Clone())
		return nil
	}

	t := s.Table(op.Table)
	if t == nil {
		return fmt.Errorf("%w: %s: table %q does not exist", ErrInvalidSchema, op.Kind, op.Table)
	}

	switch op.Kind {
	case DropTable:
		for i, candidate := range s.Tables {
			if candidate == t {
				s.Tables = append(s.Tables[:i], s.Tables[i+1:]...)
				break
			}
		}

	case RenameTable:
		if s.Table(op.NewName) != nil {
			return fmt.Errorf("%w: cannot rename %q, table %q exists", ErrInvalidSchema, op.Table, op.NewName)
		}
		t.Name = op.NewName
		for _, other := range s.Tables {
			for _, fk := range other.ForeignKeys() {
				if fk.RefTable == op.Table {
					fk.RefTable = op.NewName
				}
			}
		}

	case AddColumn:
		if t.Column(op.Column.Name) != nil {
			return fmt.Errorf("%w: column %s.%s already exists", ErrInvalidSchema, t.Name, op.Column.Name)
		}
		t.Columns = append(t.Columns, op.Column.Clone())

	case DropColumn:
		i := t.ColumnIndex(op.Column.Name)
		if i < 0 {
			return fmt.Errorf("%w: column %s.%s does not exist", ErrInvalidSchema, t.Name, op.Column.Name)
		}
		for _, con := range t.Constraints {
			if con.HasColumn(op.Column.Name) {
				return fmt.Errorf("%w: column %s.%s is still used by %s", ErrInvalidSchema, t.Name, op.Column.Name, con.Key())
			}
		}
		t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)

	case AlterColumn:
		i := t.ColumnIndex(op.Column.Name)
		if i < 0 {
			return fmt.Errorf("%w: column %s.%s does not exist", ErrInvalidSchema, t.Name, op.Column.Name)
		}
		t.Columns[i] = op.Column.Clone()

	case RenameColumn:
		c := t.Column(op.OldName)
		if c == nil {
			return fmt.Errorf("%w: column %s.%s does not exist", ErrInvalidSchema, t.Name, op.OldName)
		}
		if t.Column(op.NewName) != nil {
			return fmt.Errorf("%w: column %s.%s already exists", ErrInvalidSchema, t.Name, op.NewName)
		}
		c.Name = op.NewName
		for _, con := range t.Constraints {
			replaceName(con.Columns, op.OldName, op.NewName)
		}
		for _, other := range s.Tables {
			for _, fk := range other.ForeignKeys() {
				if fk.RefTable == t.Name {
					replaceName(fk.RefColumns, op.OldName, op.NewName)
				}
			}
		}

	case AddConstraint:
		if t.Constraint(op.Constraint) != nil {
			return fmt.Errorf("%w: constraint %s already exists on %q", ErrInvalidSchema, op.Constraint.Key(), t.Name)
		}
		if op.Constraint.Kind == PrimaryKeyConstraint && t.PrimaryKey() != nil {
			return fmt.Errorf("%w: table %q already has a primary key", ErrInvalidSchema, t.Name)
		}
		t.Constraints = append(t.Constraints, op.Constraint.Clone())

	case DropConstraint:
		key := op.Constraint.Key()
		for i, con := range t.Constraints {
			if con.Key() == key {
				t.Constraints = append(t.Constraints[:i], t.Constraints[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: constraint %s does not exist on %q", ErrInvalidSchema, key, t.Name)

	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidSchema, op.Kind)
	}
	return nil
}

// ApplyAll applies a diff to a copy of the schema.
func (s *Schema) ApplyAll(d *Diff) (*Schema, error) {
	out := s.Clone()
	for _, op := range d.Operations {
		if err := out.Apply(op); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", op, err)
		}
	}
	return out, nil
}

func replaceName(names []string, from, to string) {
	for i, n := range names {
		if n == from {
			names[i] = to
		}
	}
}

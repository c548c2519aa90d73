// Package entities turns Go structs into table definitions.
package entities

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gorm.io/gorm/schema"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// TagName is the struct tag read next to the gorm tag.
const TagName = "gonmigrate"

type EntityModel struct {
	Name      string
	TableName string
	Fields    []FieldModel
}

type FieldModel struct {
	Name          string
	ColumnName    string
	GoType        string
	Type          models.LogicalType
	Size          int
	Precision     int
	Scale         int
	Tags          map[string]string
	IsPrimary     bool
	IsNullable    bool
	IsUnique      bool
	AutoIncrement bool
	DefaultValue  *string
	OldName       string
}

// fieldSource is one struct field as seen by either reflection or the
// source scanner.
type fieldSource struct {
	name     string
	goType   string
	kind     reflect.Kind
	pointer  bool
	gonTag   string
	gormTag  string
	embedded bool
}

// parseTags reads "key:value;flag" tags. Keys are folded so that gorm's
// camelCase ("primaryKey", "not null") and snake_case spellings match.
func parseTags(tagStr string, tags map[string]string) {
	parts := strings.Split(tagStr, ";")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, _ := strings.Cut(part, ":")
		tags[foldKey(key)] = strings.TrimSpace(value)
	}
}

func foldKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "_", "")
	return strings.ReplaceAll(key, " ", "")
}

func skipped(src fieldSource) bool {
	return strings.TrimSpace(src.gonTag) == "-" || strings.HasPrefix(strings.TrimSpace(src.gormTag), "-")
}

func parseFieldModel(src fieldSource, table string, namer schema.Namer) (FieldModel, bool, error) {
	tags := make(map[string]string)
	if src.gormTag != "" {
		parseTags(src.gormTag, tags)
	}
	if src.gonTag != "" {
		parseTags(src.gonTag, tags)
	}

	field := FieldModel{
		Name:       src.name,
		ColumnName: namer.ColumnName(table, src.name),
		GoType:     src.goType,
		Tags:       tags,
		IsNullable: src.pointer,
	}
	if column, ok := tags["column"]; ok && column != "" {
		field.ColumnName = column
	}

	mapped, ok := mapGoType(src.goType, src.kind)
	if sqlType, exists := tags["type"]; exists {
		var err error
		if mapped, err = parseSQLType(sqlType); err != nil {
			return field, false, fmt.Errorf("field %s: %w", src.name, err)
		}
		ok = true
	}
	if !ok {
		// Relations and other composite fields are not columns.
		return field, false, nil
	}
	field.Type = mapped.typ
	field.Size = mapped.size
	field.IsNullable = field.IsNullable || mapped.nullable

	if _, exists := tags["primarykey"]; exists {
		field.IsPrimary = true
	}
	if _, exists := tags["null"]; exists {
		field.IsNullable = true
	}
	if _, exists := tags["notnull"]; exists {
		field.IsNullable = false
	}
	if _, exists := tags["unique"]; exists {
		field.IsUnique = true
	}
	if v, exists := tags["default"]; exists {
		def := v
		field.DefaultValue = &def
	}
	if v, exists := tags["oldname"]; exists {
		field.OldName = v
	}

	var err error
	if field.Size, err = intTag(tags, "size", field.Size); err != nil {
		return field, false, fmt.Errorf("field %s: %w", src.name, err)
	}
	if field.Precision, err = intTag(tags, "precision", mapped.precision); err != nil {
		return field, false, fmt.Errorf("field %s: %w", src.name, err)
	}
	if field.Scale, err = intTag(tags, "scale", mapped.scale); err != nil {
		return field, false, fmt.Errorf("field %s: %w", src.name, err)
	}
	if v, exists := tags["autoincrement"]; exists {
		field.AutoIncrement = v == "" || v == "true"
	}
	return field, true, nil
}

func intTag(tags map[string]string, key string, fallback int) (int, error) {
	v, ok := tags[key]
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", models.ErrInvalidSchema, key, v)
	}
	return n, nil
}

// finish applies the table level conventions: an "ID" field is the primary
// key when no field is tagged, and a single integer key auto-increments
// unless told otherwise.
func (e *EntityModel) finish() {
	primary := 0
	for _, f := range e.Fields {
		if f.IsPrimary {
			primary++
		}
	}
	if primary == 0 {
		for i := range e.Fields {
			if e.Fields[i].Name == "ID" {
				e.Fields[i].IsPrimary = true
				primary = 1
				break
			}
		}
	}
	for i := range e.Fields {
		f := &e.Fields[i]
		if !f.IsPrimary {
			continue
		}
		f.IsNullable = false
		if _, set := f.Tags["autoincrement"]; !set && primary == 1 && f.Type == models.TypeInteger {
			f.AutoIncrement = true
		}
	}
}

// Table converts the entity into a table definition.
func (e *EntityModel) Table() (*models.Table, error) {
	t := &models.Table{Name: e.TableName}
	var pk []string
	groups := make(map[string]*models.Constraint)
	var grouped []*models.Constraint

	for _, f := range e.Fields {
		t.Columns = append(t.Columns, &models.Column{
			Name:          f.ColumnName,
			Type:          f.Type,
			Nullable:      f.IsNullable,
			Default:       f.DefaultValue,
			Size:          f.Size,
			Precision:     f.Precision,
			Scale:         f.Scale,
			AutoIncrement: f.AutoIncrement,
			OldName:       f.OldName,
		})
		if f.IsPrimary {
			pk = append(pk, f.ColumnName)
		}
		if f.IsUnique {
			t.Constraints = append(t.Constraints, &models.Constraint{Kind: models.UniqueConstraint, Columns: []string{f.ColumnName}})
		}
		for _, spec := range []struct {
			key  string
			kind models.ConstraintKind
		}{{"uniqueindex", models.UniqueConstraint}, {"index", models.IndexConstraint}} {
			group, ok := f.Tags[spec.key]
			if !ok {
				continue
			}
			if group == "" {
				t.Constraints = append(t.Constraints, &models.Constraint{Kind: spec.kind, Columns: []string{f.ColumnName}})
				continue
			}
			key := string(spec.kind) + "/" + group
			if con, exists := groups[key]; exists {
				con.Columns = append(con.Columns, f.ColumnName)
				continue
			}
			con := &models.Constraint{Kind: spec.kind, Columns: []string{f.ColumnName}}
			groups[key] = con
			grouped = append(grouped, con)
		}
		if ref, ok := f.Tags["references"]; ok {
			fk, err := foreignKey(f, ref)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, f.Name, err)
			}
			t.Constraints = append(t.Constraints, fk)
		}
	}
	t.Constraints = append(t.Constraints, grouped...)
	if len(pk) > 0 {
		t.Constraints = append([]*models.Constraint{{Kind: models.PrimaryKeyConstraint, Columns: pk}}, t.Constraints...)
	}
	return t, nil
}

// foreignKey parses "references:table.column" with optional on_delete and
// on_update tags.
func foreignKey(f FieldModel, ref string) (*models.Constraint, error) {
	table, column, ok := strings.Cut(ref, ".")
	if !ok || table == "" || column == "" {
		return nil, fmt.Errorf("%w: references must be table.column, got %q", models.ErrInvalidSchema, ref)
	}
	onDelete, err := models.ParseReferentialAction(f.Tags["ondelete"])
	if err != nil {
		return nil, err
	}
	onUpdate, err := models.ParseReferentialAction(f.Tags["onupdate"])
	if err != nil {
		return nil, err
	}
	return &models.Constraint{
		Kind:       models.ForeignKeyConstraint,
		Columns:    []string{f.ColumnName},
		RefTable:   table,
		RefColumns: []string{column},
		OnDelete:   onDelete,
		OnUpdate:   onUpdate,
	}, nil
}

package entities

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

type mappedType struct {
	typ       models.LogicalType
	size      int
	precision int
	scale     int
	nullable  bool
}

// namedTypes maps well known named types, by their qualified name, to a
// column type.
var namedTypes = map[string]mappedType{
	"time.Time":          {typ: models.TypeDateTime},
	"uuid.UUID":          {typ: models.TypeString, size: 36},
	"[]byte":             {typ: models.TypeBlob},
	"[]uint8":            {typ: models.TypeBlob},
	"json.RawMessage":    {typ: models.TypeString},
	"gorm.DeletedAt":     {typ: models.TypeDateTime, nullable: true},
	"sql.NullString":     {typ: models.TypeString, nullable: true},
	"sql.NullInt16":      {typ: models.TypeInteger, nullable: true},
	"sql.NullInt32":      {typ: models.TypeInteger, nullable: true},
	"sql.NullInt64":      {typ: models.TypeInteger, size: 8, nullable: true},
	"sql.NullFloat64":    {typ: models.TypeFloat, nullable: true},
	"sql.NullBool":       {typ: models.TypeBoolean, nullable: true},
	"sql.NullTime":       {typ: models.TypeDateTime, nullable: true},
	"sql.NullByte":       {typ: models.TypeInteger, nullable: true},
	"decimal.Decimal":    {typ: models.TypeFloat, precision: 20, scale: 8},
	"datatypes.JSON":     {typ: models.TypeString},
	"datatypes.Date":     {typ: models.TypeDateTime},
	"pgtype.Timestamptz": {typ: models.TypeDateTime, nullable: true},
	"pgtype.Text":        {typ: models.TypeString, nullable: true},
	"pgtype.Int8":        {typ: models.TypeInteger, size: 8, nullable: true},
	"pgtype.Bool":        {typ: models.TypeBoolean, nullable: true},
	"pgtype.Float8":      {typ: models.TypeFloat, nullable: true},
	"pgtype.UUID":        {typ: models.TypeString, size: 36, nullable: true},
}

// basicTypes maps predeclared types by name; the source scanner only knows
// names, reflection also knows kinds.
var basicTypes = map[string]mappedType{
	"int":     {typ: models.TypeInteger, size: 8},
	"int8":    {typ: models.TypeInteger, size: 1},
	"int16":   {typ: models.TypeInteger, size: 2},
	"int32":   {typ: models.TypeInteger, size: 4},
	"int64":   {typ: models.TypeInteger, size: 8},
	"uint":    {typ: models.TypeInteger, size: 8},
	"uint8":   {typ: models.TypeInteger, size: 1},
	"uint16":  {typ: models.TypeInteger, size: 2},
	"uint32":  {typ: models.TypeInteger, size: 4},
	"uint64":  {typ: models.TypeInteger, size: 8},
	"byte":    {typ: models.TypeInteger, size: 1},
	"rune":    {typ: models.TypeInteger, size: 4},
	"float32": {typ: models.TypeFloat},
	"float64": {typ: models.TypeFloat},
	"string":  {typ: models.TypeString},
	"bool":    {typ: models.TypeBoolean},
}

func mapGoType(goType string, kind reflect.Kind) (mappedType, bool) {
	if m, ok := namedTypes[goType]; ok {
		return m, true
	}
	if m, ok := basicTypes[goType]; ok {
		return m, true
	}
	// Named types over a basic kind, e.g. "type Status string".
	if kind != reflect.Invalid {
		if m, ok := basicTypes[kind.String()]; ok {
			return m, true
		}
	}
	return mappedType{}, false
}

var sqlTypePattern = regexp.MustCompile(`^\s*([a-zA-Z][a-zA-Z0-9 ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

// parseSQLType accepts a logical type name or a common SQL spelling such
// as "varchar(100)" or "numeric(10,2)" in a type tag.
func parseSQLType(s string) (mappedType, error) {
	if lt, err := models.ParseLogicalType(s); err == nil {
		return mappedType{typ: lt}, nil
	}

	m := sqlTypePattern.FindStringSubmatch(s)
	if m == nil {
		return mappedType{}, fmt.Errorf("%w: unsupported column type %q", models.ErrInvalidSchema, s)
	}
	name := strings.ToLower(m[1])
	a, _ := strconv.Atoi(m[2])
	b, _ := strconv.Atoi(m[3])

	switch name {
	case "smallint", "tinyint", "mediumint", "serial", "smallserial":
		return mappedType{typ: models.TypeInteger}, nil
	case "bigserial":
		return mappedType{typ: models.TypeInteger, size: 8}, nil
	case "double precision", "float4", "float8":
		return mappedType{typ: models.TypeFloat}, nil
	case "numeric", "decimal":
		return mappedType{typ: models.TypeFloat, precision: a, scale: b}, nil
	case "char", "character", "varchar", "character varying", "nvarchar":
		return mappedType{typ: models.TypeString, size: a}, nil
	case "uuid":
		return mappedType{typ: models.TypeString, size: 36}, nil
	case "json", "jsonb", "longtext", "mediumtext", "clob":
		return mappedType{typ: models.TypeString}, nil
	case "timestamptz", "timestamp with time zone":
		return mappedType{typ: models.TypeDateTime}, nil
	case "bytea", "longblob", "varbinary":
		return mappedType{typ: models.TypeBlob}, nil
	}
	if lt, err := models.ParseLogicalType(name); err == nil {
		mt := mappedType{typ: lt}
		switch lt {
		case models.TypeString:
			mt.size = a
		case models.TypeFloat:
			mt.precision, mt.scale = a, b
		}
		return mt, nil
	}
	return mappedType{}, fmt.Errorf("%w: unsupported column type %q", models.ErrInvalidSchema, s)
}

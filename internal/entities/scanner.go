package entities

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Scanner builds entities from Go source without compiling it. A struct is
// an entity when at least one of its fields carries a gonmigrate tag.
type Scanner struct {
	fs    afero.Fs
	namer schema.Namer
}

func NewScanner(fs afero.Fs, namer schema.Namer) *Scanner {
	if namer == nil {
		namer = DefaultNamingStrategy()
	}
	return &Scanner{fs: fs, namer: namer}
}

type scannedStruct struct {
	name   string
	file   string
	fields *ast.FieldList
}

type scanState struct {
	structs    map[string]*scannedStruct
	order      []string
	tableNames map[string]string
	embedded   map[string]bool
	basic      map[string]string // local named types over a predeclared type
}

// ScanForEntities parses every non-test Go file under root and returns the
// entities found, sorted by table name.
func (s *Scanner) ScanForEntities(root string) ([]*EntityModel, error) {
	state := &scanState{
		structs:    make(map[string]*scannedStruct),
		tableNames: make(map[string]string),
		embedded:   make(map[string]bool),
		basic:      make(map[string]string),
	}

	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != root && (name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		src, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return err
		}
		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, src, 0)
		if err != nil {
			return err
		}
		s.collect(node, path, state)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	var result []*EntityModel
	for _, name := range state.order {
		st := state.structs[name]
		if state.embedded[name] || !hasTag(st.fields) {
			continue
		}
		model, err := s.entity(st, state)
		if err != nil {
			return nil, err
		}
		result = append(result, model)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TableName < result[j].TableName })
	return result, nil
}

// ScanSchema scans root and builds the validated schema.
func (s *Scanner) ScanSchema(root string) (*models.Schema, error) {
	entities, err := s.ScanForEntities(root)
	if err != nil {
		return nil, err
	}
	var tables []*models.Table
	for _, e := range entities {
		t, err := e.Table()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	desired := models.NewSchema(tables...)
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	return desired, nil
}

func (s *Scanner) collect(file *ast.File, path string, state *scanState) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				typeSpec, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if ident, ok := typeSpec.Type.(*ast.Ident); ok {
					if _, known := basicTypes[ident.Name]; known {
						state.basic[typeSpec.Name.Name] = ident.Name
					}
					continue
				}
				structType, ok := typeSpec.Type.(*ast.StructType)
				if !ok {
					continue
				}
				name := typeSpec.Name.Name
				if _, dup := state.structs[name]; !dup {
					state.order = append(state.order, name)
				}
				state.structs[name] = &scannedStruct{name: name, file: path, fields: structType.Fields}
				for _, field := range structType.Fields.List {
					if len(field.Names) == 0 {
						if ident, ok := derefExpr(field.Type).(*ast.Ident); ok {
							state.embedded[ident.Name] = true
						}
					}
				}
			}
		case *ast.FuncDecl:
			if table, receiver, ok := tableNameMethod(d); ok {
				state.tableNames[receiver] = table
			}
		}
	}
}

// tableNameMethod recognises `func (T) TableName() string { return "x" }`.
func tableNameMethod(fn *ast.FuncDecl) (string, string, bool) {
	if fn.Name.Name != "TableName" || fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil {
		return "", "", false
	}
	recv, ok := derefExpr(fn.Recv.List[0].Type).(*ast.Ident)
	if !ok || len(fn.Body.List) != 1 {
		return "", "", false
	}
	ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return "", "", false
	}
	lit, ok := ret.Results[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", "", false
	}
	value, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", "", false
	}
	return value, recv.Name, true
}

func hasTag(fields *ast.FieldList) bool {
	for _, field := range fields.List {
		if field.Tag == nil {
			continue
		}
		if tag, err := strconv.Unquote(field.Tag.Value); err == nil {
			if _, ok := reflect.StructTag(tag).Lookup(TagName); ok {
				return true
			}
		}
	}
	return false
}

func (s *Scanner) entity(st *scannedStruct, state *scanState) (*EntityModel, error) {
	entity := &EntityModel{Name: st.name, TableName: s.namer.TableName(st.name)}
	if table, ok := state.tableNames[st.name]; ok {
		entity.TableName = table
	}

	var sources []fieldSource
	if err := s.sources(st.fields, state, &sources, map[string]bool{st.name: true}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidSchema, st.file, err)
	}
	for _, src := range sources {
		field, ok, err := parseFieldModel(src, entity.TableName, s.namer)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidSchema, st.name, err)
		}
		if ok {
			entity.Fields = append(entity.Fields, field)
		}
	}
	entity.finish()
	return entity, nil
}

func (s *Scanner) sources(fields *ast.FieldList, state *scanState, out *[]fieldSource, visiting map[string]bool) error {
	for _, field := range fields.List {
		var gonTag, gormTag string
		if field.Tag != nil {
			tag, err := strconv.Unquote(field.Tag.Value)
			if err != nil {
				return err
			}
			gonTag = reflect.StructTag(tag).Get(TagName)
			gormTag = reflect.StructTag(tag).Get("gorm")
		}
		goType, pointer := typeName(field.Type)

		if len(field.Names) == 0 {
			if skipped(fieldSource{gonTag: gonTag, gormTag: gormTag}) {
				continue
			}
			if goType == "gorm.Model" {
				collectFields(reflect.TypeOf(gorm.Model{}), out)
				continue
			}
			if inner, ok := state.structs[goType]; ok && !visiting[goType] {
				visiting[goType] = true
				if err := s.sources(inner.fields, state, out, visiting); err != nil {
					return err
				}
				delete(visiting, goType)
			}
			continue
		}

		if basic, ok := state.basic[goType]; ok {
			goType = basic
		}
		for _, name := range field.Names {
			if !name.IsExported() {
				continue
			}
			src := fieldSource{
				name:    name.Name,
				goType:  goType,
				kind:    reflect.Invalid,
				pointer: pointer,
				gonTag:  gonTag,
				gormTag: gormTag,
			}
			if skipped(src) {
				continue
			}
			*out = append(*out, src)
		}
	}
	return nil
}

func derefExpr(expr ast.Expr) ast.Expr {
	if star, ok := expr.(*ast.StarExpr); ok {
		return star.X
	}
	return expr
}

// typeName renders a field type the way reflect.Type.String does for the
// types the mapper knows.
func typeName(expr ast.Expr) (string, bool) {
	pointer := false
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
		pointer = true
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name, pointer
	case *ast.SelectorExpr:
		if pkg, ok := t.X.(*ast.Ident); ok {
			return pkg.Name + "." + t.Sel.Name, pointer
		}
	case *ast.ArrayType:
		if elem, ok := t.Elt.(*ast.Ident); ok && t.Len == nil {
			return "[]" + elem.Name, pointer
		}
	}
	return "", pointer
}

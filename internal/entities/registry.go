package entities

import (
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm/schema"

	"github.com/shepherrrd/gonmigrate/internal/models"
)

// Registry collects entity types and builds the desired schema from them.
type Registry struct {
	namer    schema.Namer
	mu       sync.RWMutex
	types    []reflect.Type
	entities map[reflect.Type]*EntityModel
}

// NewRegistry returns an empty registry. A nil namer means gorm's default
// snake_case strategy.
func NewRegistry(namer schema.Namer) *Registry {
	if namer == nil {
		namer = DefaultNamingStrategy()
	}
	return &Registry{
		namer:    namer,
		entities: make(map[reflect.Type]*EntityModel),
	}
}

// Register adds struct values or pointers. Registering a type twice is a
// no-op.
func (r *Registry) Register(entities ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entity := range entities {
		entityType := reflect.TypeOf(entity)
		if entityType == nil {
			return fmt.Errorf("%w: cannot register nil entity", models.ErrInvalidSchema)
		}
		for entityType.Kind() == reflect.Ptr {
			entityType = entityType.Elem()
		}
		if entityType.Kind() != reflect.Struct {
			return fmt.Errorf("%w: entity %s is not a struct", models.ErrInvalidSchema, entityType)
		}
		if _, exists := r.entities[entityType]; exists {
			continue
		}

		model, err := NewEntityModel(entityType, r.namer)
		if err != nil {
			return err
		}
		r.entities[entityType] = model
		r.types = append(r.types, entityType)
	}
	return nil
}

// Models returns the registered entities in registration order.
func (r *Registry) Models() []*EntityModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*EntityModel, 0, len(r.types))
	for _, t := range r.types {
		result = append(result, r.entities[t])
	}
	return result
}

// Schema builds and validates the desired schema.
func (r *Registry) Schema() (*models.Schema, error) {
	var tables []*models.Table
	for _, model := range r.Models() {
		t, err := model.Table()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	s := models.NewSchema(tables...)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewEntityModel reads the columns of a struct type through reflection.
// Embedded structs such as gorm.Model are flattened.
func NewEntityModel(entityType reflect.Type, namer schema.Namer) (*EntityModel, error) {
	for entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}
	if namer == nil {
		namer = DefaultNamingStrategy()
	}

	entity := &EntityModel{
		Name:      entityType.Name(),
		TableName: tableName(entityType, namer),
	}

	var sources []fieldSource
	collectFields(entityType, &sources)
	for _, src := range sources {
		field, ok, err := parseFieldModel(src, entity.TableName, namer)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidSchema, entity.Name, err)
		}
		if ok {
			entity.Fields = append(entity.Fields, field)
		}
	}
	entity.finish()
	return entity, nil
}

func tableName(entityType reflect.Type, namer schema.Namer) string {
	value := reflect.New(entityType)
	if tabler, ok := value.Interface().(schema.Tabler); ok {
		return tabler.TableName()
	}
	if tabler, ok := value.Elem().Interface().(schema.Tabler); ok {
		return tabler.TableName()
	}
	return namer.TableName(entityType.Name())
}

func collectFields(t reflect.Type, out *[]fieldSource) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		ft := field.Type
		pointer := false
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
			pointer = true
		}

		src := fieldSource{
			name:    field.Name,
			goType:  ft.String(),
			kind:    ft.Kind(),
			pointer: pointer,
			gonTag:  field.Tag.Get(TagName),
			gormTag: field.Tag.Get("gorm"),
		}
		if skipped(src) {
			continue
		}
		if field.Anonymous && ft.Kind() == reflect.Struct {
			if _, known := namedTypes[src.goType]; !known {
				collectFields(ft, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if ft.Kind() == reflect.Struct {
			if _, known := namedTypes[src.goType]; !known {
				src.kind = reflect.Invalid
			}
		}
		*out = append(*out, src)
	}
}

package crud

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"gorm.io/gorm/schema"
)

var schemaCache sync.Map

// Descriptor describes an entity type once: its name, table, column map and
// whether it carries the soft-delete capability.
type Descriptor[T any] struct {
	name       string
	table      string
	softDelete bool
	schema     *schema.Schema
}

// Describe inspects T and fails when *T does not embed Model.
func Describe[T any]() (Descriptor[T], error) {
	sample := new(T)
	if ModelOf(sample) == nil {
		return Descriptor[T]{}, fmt.Errorf("crud: %T does not embed crud.Model", sample)
	}
	parsed, err := schema.Parse(sample, &schemaCache, schema.NamingStrategy{})
	if err != nil {
		return Descriptor[T]{}, fmt.Errorf("crud: parse %T: %w", sample, err)
	}
	_, soft := any(sample).(softDeleter)
	return Descriptor[T]{
		name:       parsed.Name,
		table:      parsed.Table,
		softDelete: soft,
		schema:     parsed,
	}, nil
}

// MustDescribe is Describe for package-level wiring where a failure is a programming error.
func MustDescribe[T any]() Descriptor[T] {
	desc, err := Describe[T]()
	if err != nil {
		panic(err)
	}
	return desc
}

// Name is the Go type name of the entity, e.g. "Song".
func (d Descriptor[T]) Name() string { return d.name }

// Resource is the lowercase plural used in routes and telemetry, e.g. "songs".
func (d Descriptor[T]) Resource() string {
	return inflection.Plural(strings.ToLower(d.name))
}

// Tag is the capitalised grouping label of the resource, e.g. "Songs".
func (d Descriptor[T]) Tag() string {
	resource := d.Resource()
	if resource == "" {
		return ""
	}
	return strings.ToUpper(resource[:1]) + resource[1:]
}

// Table is the relational table backing the entity.
func (d Descriptor[T]) Table() string { return d.table }

// SoftDelete reports whether the entity embeds SoftDelete.
func (d Descriptor[T]) SoftDelete() bool { return d.softDelete }

// HasColumn reports whether column maps onto a persisted field.
func (d Descriptor[T]) HasColumn(column string) bool {
	if d.schema == nil {
		return false
	}
	field := d.schema.LookUpField(column)
	return field != nil && field.DBName != ""
}

// Assign writes changes onto rec by column name.
func (d Descriptor[T]) Assign(ctx context.Context, rec *T, changes Changes) error {
	if d.schema == nil {
		return fmt.Errorf("crud: descriptor not initialised")
	}
	target := reflect.ValueOf(rec)
	for _, column := range changes.Columns() {
		if !d.HasColumn(column) {
			return fmt.Errorf("crud: %s has no column %q", d.name, column)
		}
		field := d.schema.LookUpField(column)
		// gorm writes through a non-nil pointer field; detach it first so a
		// shallow copy never shares the write with the record it came from.
		if field.FieldType.Kind() == reflect.Ptr {
			if err := field.Set(ctx, target, nil); err != nil {
				return fmt.Errorf("crud: reset %s.%s: %w", d.name, column, err)
			}
		}
		if err := field.Set(ctx, target, changes[column]); err != nil {
			return fmt.Errorf("crud: assign %s.%s: %w", d.name, column, err)
		}
	}
	return nil
}

// Value reads the value stored in column of rec.
func (d Descriptor[T]) Value(ctx context.Context, rec *T, column string) (any, error) {
	if !d.HasColumn(column) {
		return nil, fmt.Errorf("crud: %s has no column %q", d.name, column)
	}
	value, _ := d.schema.LookUpField(column).ValueOf(ctx, reflect.ValueOf(rec))
	return value, nil
}

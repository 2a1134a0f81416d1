package postgres

import (
	"reflect"
	"sync"
)

// Repositories derive column lists and value maps from entity "db" tags
// instead of hand-maintained literals. Reflection results are cached per
// type, so only the first call for a type pays the reflection cost.

type fieldMeta struct {
	index  int
	column string
}

type structMeta struct {
	fields   []fieldMeta
	embedded []int
}

var metaCache sync.Map // reflect.Type -> *structMeta

func structMetaFor(t reflect.Type) *structMeta {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if cached, ok := metaCache.Load(t); ok {
		return cached.(*structMeta)
	}

	meta := &structMeta{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.embedded = append(meta.embedded, i)
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldMeta{index: i, column: tag})
		}
	}

	metaCache.Store(t, meta)
	return meta
}

// DBColumns returns the column names declared by T's "db" tags, walking
// embedded structs (entity.Catalog, entity.BaseDocument) depth-first in
// declaration order.
func DBColumns[T any]() []string {
	var zero T
	return columnsOf(reflect.TypeOf(zero))
}

func columnsOf(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			cols = append(cols, columnsOf(field.Type)...)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}

	return cols
}

// StructToMap converts a struct to a column->value map using "db" tags,
// flattening embedded structs. Used to build squirrel SetMap/insert maps.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := structMetaFor(rv.Type())

	res := make(map[string]any, len(meta.fields))
	for _, fm := range meta.fields {
		res[fm.column] = rv.Field(fm.index).Interface()
	}
	for _, i := range meta.embedded {
		for k, val := range StructToMap(rv.Field(i).Interface()) {
			res[k] = val
		}
	}

	return res
}
